package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"studentscorner-backend/internal/components/assert"
	"studentscorner-backend/internal/components/telemetry"
	"studentscorner-backend/internal/scrapers/studentscorner"
	"time"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers     = 15
	DefaultTaskTimeout = time.Minute

	StatusSuccess = "success"
	StatusFailed  = "failed"

	report_batch_run       = "batch.run"
	report_batch_task      = "batch.task"
	report_batch_succeeded = "batch.succeeded"
	report_batch_failed    = "batch.failed"
)

var tracer = otel.Tracer("studentscorner/batch")
var meter = otel.Meter("studentscorner/batch")
var resultCounter, _ = meter.Int64Counter("scrape_results")

// Scraper logs into the portal as acc and extracts its transcript.
//
// note: fault injection point
type Scraper interface {
	Scrape(ctx context.Context, acc studentscorner.Account) (studentscorner.Transcript, error)
}

// ScrapeResult is the outcome of scraping a single account.
type ScrapeResult struct {
	Student   studentscorner.Student    `json:"student"`
	Semesters []studentscorner.Semester `json:"semesters"`
	Overall   studentscorner.Overall    `json:"overall"`
	Status    string                    `json:"status"`
	Error     *string                   `json:"error"`
	ErrorKind studentscorner.ErrorKind  `json:"error_kind,omitempty"`
}

func successResult(acc studentscorner.Account, transcript studentscorner.Transcript) ScrapeResult {
	rollNumber := acc.RollNumber
	student := transcript.Student
	student.RollNumber = &rollNumber
	if student.Name == nil {
		name := ""
		student.Name = &name
	}

	semesters := transcript.Semesters
	if semesters == nil {
		semesters = []studentscorner.Semester{}
	}

	return ScrapeResult{
		Student:   student,
		Semesters: semesters,
		Overall:   transcript.Overall,
		Status:    StatusSuccess,
	}
}

func failedResult(acc studentscorner.Account, err error) ScrapeResult {
	rollNumber := acc.RollNumber
	message := err.Error()
	return ScrapeResult{
		Student: studentscorner.Student{
			RollNumber: &rollNumber,
		},
		Semesters: []studentscorner.Semester{},
		Status:    StatusFailed,
		Error:     &message,
		ErrorKind: studentscorner.KindOf(err),
	}
}

type Options struct {
	// Workers is the maximum number of accounts scraped at once.
	Workers int
	// TaskTimeout is how long a single account may take before it is
	// abandoned and reported as a timeout.
	TaskTimeout time.Duration
}

// Coordinator scrapes batches of accounts concurrently.
type Coordinator struct {
	scraper     Scraper
	workers     int
	taskTimeout time.Duration
	tel         telemetry.API
}

func NewCoordinator(scraper Scraper, opts Options, tel telemetry.API) Coordinator {
	assert.NotNil(scraper)
	assert.NotNil(tel)

	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	assert.Positive(opts.Workers)

	return Coordinator{
		scraper:     scraper,
		workers:     opts.Workers,
		taskTimeout: opts.TaskTimeout,
		tel:         telemetry.NewScopedAPI("batch", tel),
	}
}

// Run scrapes every account and returns exactly one result per account.
//
// Results are in completion order, not in the order of accounts, callers
// should correlate them by roll number.
func (c Coordinator) Run(ctx context.Context, accounts []studentscorner.Account) []ScrapeResult {
	batchId, err := random.String(10)
	if err != nil {
		batchId = "unknown"
	}

	ctx, span := tracer.Start(ctx, "batch:Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.id", batchId),
		attribute.Int("batch.size", len(accounts)),
	)

	c.tel.ReportDebug(report_batch_run, batchId, len(accounts), c.workers)

	completed := make(chan ScrapeResult)
	go func() {
		group := errgroup.Group{}
		group.SetLimit(c.workers)
		for _, acc := range accounts {
			acc := acc
			group.Go(func() error {
				completed <- c.runTask(ctx, acc)
				return nil
			})
		}
		group.Wait()
		close(completed)
	}()

	results := make([]ScrapeResult, 0, len(accounts))
	var succeeded, failed int64
	for result := range completed {
		if result.Status == StatusSuccess {
			succeeded++
		} else {
			failed++
		}
		results = append(results, result)
	}

	c.tel.ReportCount(report_batch_succeeded, succeeded)
	c.tel.ReportCount(report_batch_failed, failed)

	return results
}

type taskOutput struct {
	transcript studentscorner.Transcript
	err        error
}

// runTask scrapes a single account. The scrape itself runs on its own
// goroutine so that a scraper which ignores its context is still abandoned
// once the deadline passes.
func (c Coordinator) runTask(ctx context.Context, acc studentscorner.Account) ScrapeResult {
	ctx, cancel := context.WithTimeout(ctx, c.taskTimeout)
	defer cancel()

	done := make(chan taskOutput, 1)
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			c.tel.ReportBroken(report_batch_task, fmt.Errorf("panic: %v", r), acc.RollNumber, string(debug.Stack()))
			done <- taskOutput{err: &studentscorner.Error{
				Kind: studentscorner.KindUnexpected,
				Op:   "scrape",
				Err:  fmt.Errorf("panic: %v", r),
			}}
		}()

		transcript, err := c.scraper.Scrape(ctx, acc)
		done <- taskOutput{transcript: transcript, err: err}
	}()

	var result ScrapeResult
	select {
	case out := <-done:
		if out.err != nil {
			result = failedResult(acc, out.err)
		} else {
			result = successResult(acc, out.transcript)
		}
	case <-ctx.Done():
		err := &studentscorner.Error{
			Kind: studentscorner.KindTimeout,
			Op:   "scrape",
			Err:  fmt.Errorf("abandoned after %s: %w", c.taskTimeout, ctx.Err()),
		}
		if ctx.Err() == context.Canceled {
			err.Kind = studentscorner.KindUnexpected
			err.Err = ctx.Err()
		}
		c.tel.ReportWarning(report_batch_task, err, acc.RollNumber)
		result = failedResult(acc, err)
	}

	resultCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", result.Status),
		attribute.String("error_kind", string(result.ErrorKind)),
	))

	return result
}
