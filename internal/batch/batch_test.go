package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"studentscorner-backend/internal/components/telemetry"
	"studentscorner-backend/internal/scrapers/studentscorner"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

type fakeScraper struct {
	scrape func(ctx context.Context, acc studentscorner.Account) (studentscorner.Transcript, error)
}

func (f fakeScraper) Scrape(ctx context.Context, acc studentscorner.Account) (studentscorner.Transcript, error) {
	return f.scrape(ctx, acc)
}

func transcriptFor(name string) studentscorner.Transcript {
	pageRoll := "9999999999"
	sgpa := 8.5
	return studentscorner.Transcript{
		Student: studentscorner.Student{Name: &name, RollNumber: &pageRoll},
		Semesters: []studentscorner.Semester{
			{
				Semester: "Semester - I",
				Subjects: []studentscorner.Subject{{Code: "A5001", Title: "Maths", Credits: 4}},
				SGPA:     &sgpa,
			},
		},
	}
}

func accounts(n int) []studentscorner.Account {
	out := make([]studentscorner.Account, n)
	for i := range out {
		out[i] = studentscorner.Account{
			RollNumber: fmt.Sprintf("2188100%03d", i+1),
			Password:   "password",
		}
	}
	return out
}

func TestRunIsolatesFailures(t *testing.T) {
	accs := accounts(3)
	scraper := fakeScraper{scrape: func(ctx context.Context, acc studentscorner.Account) (studentscorner.Transcript, error) {
		if acc.RollNumber == accs[1].RollNumber {
			return studentscorner.Transcript{}, &studentscorner.Error{
				Kind: studentscorner.KindAuth,
				Op:   "submit login",
				Err:  studentscorner.StatusError{StatusCode: 500, Status: "500 Internal Server Error", Url: "/"},
			}
		}
		return transcriptFor("STUDENT " + acc.RollNumber), nil
	}}

	coordinator := NewCoordinator(scraper, Options{}, &telemetry.RecordingAPI{})
	results := coordinator.Run(context.Background(), accs)
	require.Len(t, results, 3)

	byRoll := map[string]ScrapeResult{}
	for _, r := range results {
		byRoll[*r.Student.RollNumber] = r
	}
	require.Len(t, byRoll, 3)

	failed := byRoll[accs[1].RollNumber]
	require.Equal(t, StatusFailed, failed.Status)
	require.Equal(t, studentscorner.KindAuth, failed.ErrorKind)
	require.NotNil(t, failed.Error)
	require.Contains(t, *failed.Error, "500")
	require.NotNil(t, failed.Semesters)
	require.Empty(t, failed.Semesters)
	require.Nil(t, failed.Student.Name)
	require.Equal(t, studentscorner.Overall{}, failed.Overall)

	for _, acc := range []studentscorner.Account{accs[0], accs[2]} {
		result := byRoll[acc.RollNumber]
		require.Equal(t, StatusSuccess, result.Status)
		require.Nil(t, result.Error)
		// the caller's roll number wins over the one found on the page
		require.Equal(t, acc.RollNumber, *result.Student.RollNumber)
		require.Equal(t, "STUDENT "+acc.RollNumber, *result.Student.Name)
		require.Len(t, result.Semesters, 1)
	}
}

func TestRunEmpty(t *testing.T) {
	coordinator := NewCoordinator(fakeScraper{}, Options{}, &telemetry.RecordingAPI{})
	results := coordinator.Run(context.Background(), nil)
	require.NotNil(t, results)
	require.Empty(t, results)
}

func TestRunBoundsConcurrency(t *testing.T) {
	const workers = 4

	var current, peak int64
	scraper := fakeScraper{scrape: func(ctx context.Context, acc studentscorner.Account) (studentscorner.Transcript, error) {
		n := atomic.AddInt64(&current, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond * 20)
		atomic.AddInt64(&current, -1)
		return transcriptFor("x"), nil
	}}

	coordinator := NewCoordinator(scraper, Options{Workers: workers}, &telemetry.RecordingAPI{})
	results := coordinator.Run(context.Background(), accounts(20))

	require.Len(t, results, 20)
	require.LessOrEqual(t, atomic.LoadInt64(&peak), int64(workers))
	require.Greater(t, atomic.LoadInt64(&peak), int64(1))
}

func TestRunAbandonsSlowTasks(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	accs := accounts(2)
	scraper := fakeScraper{scrape: func(ctx context.Context, acc studentscorner.Account) (studentscorner.Transcript, error) {
		if acc.RollNumber == accs[0].RollNumber {
			// ignores ctx on purpose
			<-release
		}
		return transcriptFor("fast"), nil
	}}

	coordinator := NewCoordinator(scraper, Options{TaskTimeout: time.Millisecond * 50}, &telemetry.RecordingAPI{})
	results := coordinator.Run(context.Background(), accs)
	require.Len(t, results, 2)

	for _, r := range results {
		if *r.Student.RollNumber == accs[0].RollNumber {
			require.Equal(t, StatusFailed, r.Status)
			require.Equal(t, studentscorner.KindTimeout, r.ErrorKind)
			continue
		}
		require.Equal(t, StatusSuccess, r.Status)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	tel := &telemetry.RecordingAPI{}
	scraper := fakeScraper{scrape: func(ctx context.Context, acc studentscorner.Account) (studentscorner.Transcript, error) {
		panic("index out of range")
	}}

	coordinator := NewCoordinator(scraper, Options{}, tel)
	results := coordinator.Run(context.Background(), accounts(1))
	require.Len(t, results, 1)
	require.Equal(t, StatusFailed, results[0].Status)
	require.Equal(t, studentscorner.KindUnexpected, results[0].ErrorKind)
	require.Contains(t, *results[0].Error, "index out of range")
	require.NotEmpty(t, tel.Reports("broken"))
}

func TestRunPlainErrorsAreUnexpected(t *testing.T) {
	scraper := fakeScraper{scrape: func(ctx context.Context, acc studentscorner.Account) (studentscorner.Transcript, error) {
		return studentscorner.Transcript{}, errors.New("boom")
	}}

	coordinator := NewCoordinator(scraper, Options{}, &telemetry.RecordingAPI{})
	results := coordinator.Run(context.Background(), accounts(1))
	require.Equal(t, studentscorner.KindUnexpected, results[0].ErrorKind)
	require.Equal(t, "boom", *results[0].Error)
}

func TestRunReportsCounts(t *testing.T) {
	scraper := fakeScraper{scrape: func(ctx context.Context, acc studentscorner.Account) (studentscorner.Transcript, error) {
		if acc.RollNumber == "2188100001" {
			return studentscorner.Transcript{}, errors.New("boom")
		}
		return transcriptFor("x"), nil
	}}

	tel := &telemetry.RecordingAPI{}
	coordinator := NewCoordinator(scraper, Options{}, tel)
	coordinator.Run(context.Background(), accounts(5))

	counts := map[string]int64{}
	for _, r := range tel.Reports("count") {
		counts[r.Id] = r.Count
	}
	diff := cmp.Diff(map[string]int64{
		"batch: " + report_batch_succeeded: 4,
		"batch: " + report_batch_failed:    1,
	}, counts)
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestScrapeResultJson(t *testing.T) {
	failed := failedResult(studentscorner.Account{RollNumber: "2188100001"}, errors.New("boom"))
	encoded, err := json.Marshal(failed)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"student": {"name": null, "roll_number": "2188100001"},
		"semesters": [],
		"overall": {"total_credits": null, "secured_credits": null, "cgpa": null},
		"status": "failed",
		"error": "boom",
		"error_kind": "unexpected"
	}`, string(encoded))

	succeeded := successResult(studentscorner.Account{RollNumber: "2188100002"}, transcriptFor("RAVI"))
	encoded, err = json.Marshal(succeeded)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	diff := cmp.Diff(map[string]any{
		"student": map[string]any{"name": "RAVI", "roll_number": "2188100002"},
		"semesters": []any{map[string]any{
			"semester": "Semester - I",
			"subjects": []any{map[string]any{
				"code":        "A5001",
				"title":       "Maths",
				"grade_point": nil,
				"grade":       "",
				"status":      "",
				"credits":     4.0,
			}},
			"sgpa": 8.5,
		}},
		"overall": map[string]any{"total_credits": nil, "secured_credits": nil, "cgpa": nil},
		"status":  "success",
		"error":   nil,
	}, decoded, cmpopts.EquateEmpty())
	if diff != "" {
		t.Fatal(diff)
	}
}
