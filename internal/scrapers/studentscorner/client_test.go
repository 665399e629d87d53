package studentscorner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"studentscorner-backend/internal/components/telemetry"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const loginPage = `<html><body>
<form method="post" action="/">
	<input type="hidden" name="__csrf" value="token-123">
	<input type="hidden" name="rollno" value="should-be-overridden">
	<input type="text" name="visible" value="not-sent">
	<input type="text" name="rollno">
	<input type="password" name="wak">
	<input type="submit" name="ok" value="SignIn">
</form>
</body></html>`

type fakePortal struct {
	mutex      sync.Mutex
	loginForms []map[string]string
	userAgents []string

	// status overrides the status code of the step with the given method + path
	status map[string]int
	delay  time.Duration
}

func (p *fakePortal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if p.delay > 0 {
			time.Sleep(p.delay)
		}
		if code, ok := p.status[r.Method+" "+r.URL.Path]; ok {
			w.WriteHeader(code)
			return
		}

		p.mutex.Lock()
		p.userAgents = append(p.userAgents, r.Header.Get("User-Agent"))
		p.mutex.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/":
			http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "session-1", Path: "/"})
			w.Write([]byte(loginPage))
		case r.Method == http.MethodPost && r.URL.Path == "/":
			cookie, err := r.Cookie("PHPSESSID")
			if err != nil || cookie.Value != "session-1" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			err = r.ParseForm()
			require.NoError(t, err)
			form := map[string]string{}
			for k := range r.PostForm {
				form[k] = r.PostForm.Get(k)
			}
			p.mutex.Lock()
			p.loginForms = append(p.loginForms, form)
			p.mutex.Unlock()

			http.SetCookie(w, &http.Cookie{Name: "logged_in", Value: form["rollno"], Path: "/"})
			http.Redirect(w, r, "/home.php", http.StatusFound)
		case r.URL.Path == "/home.php":
			w.Write([]byte("<html>welcome</html>"))
		case r.URL.Path == "/"+DefaultCreditRegisterPath:
			cookie, err := r.Cookie("logged_in")
			if err != nil || cookie.Value == "" {
				w.Write([]byte(loginPage))
				return
			}
			w.Write([]byte(creditRegisterHtml))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return mux
}

func newTestClient(t *testing.T, baseUrl string, tel telemetry.API) *Client {
	client, err := NewClient(ClientOptions{
		BaseUrl:        baseUrl,
		RequestTimeout: time.Second * 5,
	}, tel)
	require.NoError(t, err)
	return client
}

func TestLoginAndFetch(t *testing.T) {
	portal := &fakePortal{}
	server := httptest.NewServer(portal.handler(t))
	defer server.Close()

	client := newTestClient(t, server.URL, &telemetry.RecordingAPI{})
	page, err := client.LoginAndFetch(context.Background(), "21881A0501", "hunter2")
	require.NoError(t, err)
	require.Equal(t, creditRegisterHtml, page)

	require.Len(t, portal.loginForms, 1)
	require.Equal(t, map[string]string{
		"__csrf": "token-123",
		"rollno": "21881A0501",
		"wak":    "hunter2",
		"ok":     "SignIn",
	}, portal.loginForms[0])

	for _, ua := range portal.userAgents {
		require.NotEmpty(t, ua)
	}
}

func TestLoginAndFetchStatusFailure(t *testing.T) {
	steps := []string{
		"GET /",
		"POST /",
		"GET /" + DefaultCreditRegisterPath,
	}

	for _, step := range steps {
		portal := &fakePortal{status: map[string]int{step: http.StatusInternalServerError}}
		server := httptest.NewServer(portal.handler(t))

		tel := &telemetry.RecordingAPI{}
		client := newTestClient(t, server.URL, tel)
		_, err := client.LoginAndFetch(context.Background(), "21881A0501", "hunter2")
		server.Close()

		require.Error(t, err, step)
		require.Equal(t, KindAuth, KindOf(err), step)

		var statusErr StatusError
		require.True(t, errors.As(err, &statusErr), step)
		require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
		require.NotEmpty(t, tel.Reports("warning"), step)
	}
}

func TestLoginAndFetchNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseUrl := server.URL
	server.Close()

	client := newTestClient(t, baseUrl, &telemetry.RecordingAPI{})
	_, err := client.LoginAndFetch(context.Background(), "21881A0501", "hunter2")
	require.Error(t, err)
	require.Equal(t, KindNetwork, KindOf(err))
}

func TestLoginAndFetchTimeout(t *testing.T) {
	portal := &fakePortal{delay: time.Millisecond * 500}
	server := httptest.NewServer(portal.handler(t))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()

	client := newTestClient(t, server.URL, &telemetry.RecordingAPI{})
	_, err := client.LoginAndFetch(ctx, "21881A0501", "hunter2")
	require.Error(t, err)
	require.Equal(t, KindTimeout, KindOf(err))
}

func TestNewClientRejectsRelativeUrl(t *testing.T) {
	_, err := NewClient(ClientOptions{BaseUrl: "studentscorner.example"}, &telemetry.RecordingAPI{})
	require.Error(t, err)
}

func TestPortalScrape(t *testing.T) {
	portal := &fakePortal{}
	server := httptest.NewServer(portal.handler(t))
	defer server.Close()

	p := NewPortal(ClientOptions{BaseUrl: server.URL}, &telemetry.RecordingAPI{})

	for i := 0; i < 2; i++ {
		transcript, err := p.Scrape(context.Background(), Account{
			RollNumber: "21881A0501",
			Password:   "hunter2",
		})
		require.NoError(t, err)
		require.Len(t, transcript.Semesters, 2)
		require.Equal(t, "RAVI KUMAR SHARMA", *transcript.Student.Name)
	}

	// every scrape logs in from scratch
	require.Len(t, portal.loginForms, 2)
}
