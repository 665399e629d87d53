// client.go contains the login flow of the portal, it does not know anything
// about what the credit register page looks like.

package studentscorner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"studentscorner-backend/internal/components/assert"
	"studentscorner-backend/internal/components/telemetry"
	"studentscorner-backend/pkg/htmlutil"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultBaseUrl            = "https://studentscorner.vardhaman.org/"
	DefaultCreditRegisterPath = "src_programs/students_corner/CreditRegister/credit_register.php"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

	report_client_login_and_fetch = "client.login-and-fetch"
)

var tracer = otel.Tracer("studentscorner/client")

type ClientOptions struct {
	BaseUrl            string
	CreditRegisterPath string
	// RequestTimeout bounds every single HTTP request, defaults to 30 seconds.
	RequestTimeout time.Duration
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.BaseUrl == "" {
		o.BaseUrl = DefaultBaseUrl
	}
	if o.CreditRegisterPath == "" {
		o.CreditRegisterPath = DefaultCreditRegisterPath
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = time.Second * 30
	}
	return o
}

// Client is a single logged in (or about to be) session on the portal. A
// client owns its cookie jar so it must never be shared between accounts.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	creditRegisterPath string
	tel                telemetry.API
}

func NewClient(opts ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	opts = opts.withDefaults()
	assert.NotEmptyStr(opts.BaseUrl)
	assert.NotEmptyStr(opts.CreditRegisterPath)

	tel = telemetry.NewScopedAPI("studentscorner", tel)

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", opts.BaseUrl)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	origin := fmt.Sprintf("%s://%s", baseUrl.Scheme, baseUrl.Host)
	httpClient.SetHeader("user-agent", userAgent)
	httpClient.SetHeader("referer", origin+"/")
	httpClient.SetHeader("origin", origin)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	httpClient.SetTimeout(opts.RequestTimeout)

	telemetry.InstrumentResty(httpClient, tel)

	return &Client{
		BaseUrl:            baseUrl,
		Http:               httpClient,
		creditRegisterPath: opts.CreditRegisterPath,
		tel:                tel,
	}, nil
}

func classifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

// do runs a request and turns transport errors and non-success statuses into
// an *Error.
func (c *Client) do(op string, send func() (*resty.Response, error)) (*resty.Response, error) {
	res, err := send()
	if err != nil {
		return nil, &Error{Kind: classifyTransportError(err), Op: op, Err: err}
	}
	if !res.IsSuccess() {
		return nil, &Error{
			Kind: KindAuth,
			Op:   op,
			Err: StatusError{
				StatusCode: res.StatusCode(),
				Status:     res.Status(),
				Url:        res.Request.URL,
			},
		}
	}
	return res, nil
}

// LoginAndFetch logs into the portal with the given credentials and returns
// the raw html of the credit register page.
//
// 1. GET / to obtain the session cookie and the hidden fields of the login form.
// 2. POST / with rollno, wak, ok=SignIn and the hidden fields.
// 3. GET the credit register page with the same session.
func (c *Client) LoginAndFetch(ctx context.Context, rollNumber, password string) (string, error) {
	ctx, span := tracer.Start(ctx, "client:LoginAndFetch")
	defer span.End()

	fail := func(err error) (string, error) {
		switch KindOf(err) {
		case KindAuth, KindTimeout:
			c.tel.ReportWarning(report_client_login_and_fetch, err, rollNumber)
		default:
			c.tel.ReportBroken(report_client_login_and_fetch, err, rollNumber)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	res, err := c.do("fetch login page", func() (*resty.Response, error) {
		return c.Http.R().
			SetContext(ctx).
			Get("/")
	})
	if err != nil {
		return fail(err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return fail(&Error{
			Kind: KindUnexpected,
			Op:   "parse login page",
			Err:  err,
		})
	}

	form := htmlutil.HiddenInputs(doc)
	c.tel.ReportDebug("hidden fields", rollNumber, len(form))
	form["rollno"] = rollNumber
	form["wak"] = password
	form["ok"] = "SignIn"

	_, err = c.do("submit login", func() (*resty.Response, error) {
		return c.Http.R().
			SetContext(ctx).
			SetFormData(form).
			Post("/")
	})
	if err != nil {
		return fail(err)
	}

	res, err = c.do("fetch credit register", func() (*resty.Response, error) {
		return c.Http.R().
			SetContext(ctx).
			Get("/" + strings.TrimLeft(c.creditRegisterPath, "/"))
	})
	if err != nil {
		return fail(err)
	}

	return res.String(), nil
}
