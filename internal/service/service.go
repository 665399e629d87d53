package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"studentscorner-backend/internal/batch"
	"studentscorner-backend/internal/components/assert"
	"studentscorner-backend/internal/components/telemetry"
	"studentscorner-backend/internal/scrapers/studentscorner"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	maxBodyBytes = 1 << 20

	report_service_scrape = "service.scrape"
	report_service_write  = "service.write"
)

// Runner scrapes a batch of accounts.
//
// note: fault injection point
type Runner interface {
	Run(ctx context.Context, accounts []studentscorner.Account) []batch.ScrapeResult
}

type Options struct {
	// AllowedOrigins are the origins allowed to call the service from a
	// browser, "*" allows any origin.
	AllowedOrigins []string
}

// Service is the HTTP front of the scraper.
type Service struct {
	runner         Runner
	allowedOrigins []string
	tel            telemetry.API
}

func NewService(runner Runner, opts Options, tel telemetry.API) Service {
	assert.NotNil(runner)
	assert.NotNil(tel)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return Service{
		runner:         runner,
		allowedOrigins: origins,
		tel:            telemetry.NewScopedAPI("service", tel),
	}
}

func (s Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.cors)

	r.Post("/scrape", s.Scrape)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

// ValidationError is a request that is not shaped like a list of accounts.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

type accountRequest struct {
	RollNumber *string `json:"roll_number"`
	Password   *string `json:"password"`
}

// DecodeAccounts validates and decodes the body of a scrape request.
func DecodeAccounts(body []byte) ([]studentscorner.Account, error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, ValidationError{Message: "Invalid input, body must be json"}
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ValidationError{Message: "Invalid input, must be a list"}
	}

	var raw []json.RawMessage
	err := json.Unmarshal(trimmed, &raw)
	if err != nil {
		return nil, ValidationError{Message: "Invalid input, must be a list"}
	}

	accounts := make([]studentscorner.Account, len(raw))
	for i, item := range raw {
		var req accountRequest
		err := json.Unmarshal(item, &req)
		if err != nil || bytes.HasPrefix(bytes.TrimSpace(item), []byte("null")) {
			return nil, ValidationError{Message: fmt.Sprintf(
				"Invalid input, account %d must be an object with roll_number and password", i,
			)}
		}
		if req.RollNumber == nil {
			return nil, ValidationError{Message: fmt.Sprintf("Invalid input, account %d is missing roll_number", i)}
		}
		if req.Password == nil {
			return nil, ValidationError{Message: fmt.Sprintf("Invalid input, account %d is missing password", i)}
		}
		acc := studentscorner.Account{
			RollNumber: *req.RollNumber,
			Password:   *req.Password,
		}
		if acc.Validate() != nil {
			return nil, ValidationError{Message: fmt.Sprintf("Invalid input, account %d is missing roll_number", i)}
		}
		accounts[i] = acc
	}

	return accounts, nil
}

func (s Service) Scrape(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJson(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		s.writeJson(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}

	accounts, err := DecodeAccounts(body)
	if err != nil {
		s.tel.ReportDebug(report_service_scrape, "rejected request", err.Error())
		s.writeJson(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	results := s.runner.Run(r.Context(), accounts)
	s.writeJson(w, http.StatusOK, results)
}

func (s Service) writeJson(w http.ResponseWriter, status int, value any) {
	encoded, err := json.Marshal(value)
	if err != nil {
		s.tel.ReportBroken(report_service_write, fmt.Errorf("json marshal: %w", err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(encoded)
	if err != nil {
		s.tel.ReportWarning(report_service_write, err)
	}
}
