package handler

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"github.com/kursadbilgin/onboarding-engine/internal/observability"
	"github.com/kursadbilgin/onboarding-engine/internal/service"
	"github.com/kursadbilgin/onboarding-engine/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var startedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestOnboardingHandler_CreateQueued(t *testing.T) {
	t.Parallel()

	svc := &stubOnboardingService{
		submitFn: func(ctx context.Context, req service.RunRequest, wait bool) (*service.Submission, error) {
			if wait {
				t.Error("wait should default to false")
			}
			if req.Organization != "Acme Corp" || req.ProjectSlug != "cncf" || req.BatchSize != 5 {
				t.Errorf("request = %+v", req)
			}
			if req.CorrelationID != "req-123" {
				t.Errorf("CorrelationID = %q, want request id header", req.CorrelationID)
			}
			return &service.Submission{RunID: "run-1", CorrelationID: req.CorrelationID, Queued: true}, nil
		},
	}
	app := newOnboardingTestApp(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/onboardings",
		bytes.NewBufferString(`{"organization":" Acme Corp ","project":"cncf","batchSize":5}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderXRequestID, "req-123")
	resp, body := doRequest(t, app, req)

	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(body))
	}
	if got := resp.Header.Get(fiber.HeaderLocation); got != "/v1/runs/run-1" {
		t.Fatalf("Location = %q", got)
	}

	var accepted map[string]any
	if err := json.Unmarshal(body, &accepted); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if accepted["runId"] != "run-1" || accepted["queued"] != true || accepted["status"] != "RUNNING" {
		t.Fatalf("body = %v", accepted)
	}
}

func TestOnboardingHandler_CreateWait(t *testing.T) {
	t.Parallel()

	svc := &stubOnboardingService{
		submitFn: func(ctx context.Context, req service.RunRequest, wait bool) (*service.Submission, error) {
			if !wait {
				t.Error("wait query should be honored")
			}
			run := domain.NewWorkflowRun("run-2", req.Organization, req.ProjectSlug, startedAt)
			run.State = domain.RunStateDone
			run.ContactCount = 1
			run.Outcomes = []domain.BatchOutcome{{
				ContactID: "cnt-001",
				Email:     "john.doe@acmecorp.com",
				Category:  domain.CategoryPrimary,
				Committee: "Governing Board",
				Status:    domain.OutcomeSuccess,
				Steps: []domain.StepResult{
					{Step: domain.StepEmail, Status: domain.StepStatusSucceeded, Attempts: 1},
				},
			}}
			run.Finish(startedAt.Add(time.Second))
			return &service.Submission{RunID: run.ID, Run: run}, nil
		},
	}
	app := newOnboardingTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/onboardings?wait=true", `{"organization":"Acme Corp","project":"cncf"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var document map[string]any
	if err := json.Unmarshal(body, &document); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if document["runId"] != "run-2" || document["status"] != "SUCCESS" || document["succeeded"] != float64(1) {
		t.Fatalf("document = %v", document)
	}
	contacts, ok := document["contacts"].([]any)
	if !ok || len(contacts) != 1 {
		t.Fatalf("contacts = %v", document["contacts"])
	}
}

func TestOnboardingHandler_CreateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		submitErr  error
		wantStatus int
	}{
		{name: "malformed body", body: `{"organization":`, wantStatus: fiber.StatusBadRequest},
		{
			name:       "validation",
			body:       `{"organization":"Acme Corp"}`,
			submitErr:  fmt.Errorf("%w: project slug is required", domain.ErrValidation),
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "broker down",
			body:       `{"organization":"Acme Corp","project":"cncf"}`,
			submitErr:  errors.New("failed to queue onboarding request: connection refused"),
			wantStatus: fiber.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := newOnboardingTestApp(t, &stubOnboardingService{
				submitFn: func(context.Context, service.RunRequest, bool) (*service.Submission, error) {
					return nil, tt.submitErr
				},
			})

			resp, body := performRequest(t, app, http.MethodPost, "/v1/onboardings", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tt.wantStatus, string(body))
			}
			if !strings.Contains(string(body), `"error"`) {
				t.Fatalf("body = %s, want error envelope", string(body))
			}
		})
	}
}

func TestOnboardingHandler_GetRun(t *testing.T) {
	t.Parallel()

	completedAt := startedAt.Add(2 * time.Second)
	svc := &stubOnboardingService{
		getRunFn: func(ctx context.Context, runID string) (*domain.RunSummary, error) {
			switch runID {
			case "run-1":
				return &domain.RunSummary{
					RunID:              "run-1",
					Organization:       "Acme Corp",
					ProjectSlug:        "cncf",
					Status:             domain.RunStatusPartialFailure,
					State:              domain.RunStateDone,
					ContactCount:       3,
					Succeeded:          2,
					PartialFailure:     1,
					LandscapeAttempted: true,
					LandscapeURL:       "https://github.com/cncf/landscape/pull/1001",
					StartedAt:          startedAt,
					CompletedAt:        &completedAt,
				}, nil
			case "broken":
				return nil, &domain.PersistenceError{Op: "get run", Cause: errors.New("database is locked")}
			}
			return nil, fmt.Errorf("%w: run %q", domain.ErrNotFound, runID)
		},
	}
	app := newOnboardingTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/runs/run-1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var document map[string]any
	if err := json.Unmarshal(body, &document); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if document["status"] != "PARTIAL_FAILURE" || document["partialFailure"] != float64(1) {
		t.Fatalf("document = %v", document)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/runs/missing", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/runs/broken", "")
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestNewOnboardingHandlerRequiresService(t *testing.T) {
	t.Parallel()

	if err := RegisterOnboardingRoutes(fiber.New(), nil); err == nil {
		t.Fatal("expected error for nil service")
	}
}

func TestHealthRoutes(t *testing.T) {
	t.Parallel()

	t.Run("livez", func(t *testing.T) {
		t.Parallel()

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, nil)

		resp, body := performRequest(t, app, http.MethodGet, "/livez", "")
		if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"ok"`) {
			t.Fatalf("status = %d body = %s", resp.StatusCode, string(body))
		}
	})

	t.Run("readyz ok", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })

		sqlDB := sql.OpenDB(stubConnector{})
		t.Cleanup(func() { _ = sqlDB.Close() })

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, map[string]ReadinessCheck{
			"database": SQLCheck(sqlDB),
			"redis":    RedisCheck(rdb),
		})

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("readyz down", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{pingErr: errors.New("db down")})
		t.Cleanup(func() { _ = sqlDB.Close() })

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, map[string]ReadinessCheck{
			"database": SQLCheck(sqlDB),
			"rabbitmq": func(context.Context) error { return nil },
		})

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503, body=%s", resp.StatusCode, string(body))
		}

		var parsed struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			t.Fatalf("json unmarshal error = %v", err)
		}
		if parsed.Status != "not_ready" || parsed.Checks["database"] != "down" || parsed.Checks["rabbitmq"] != "ok" {
			t.Fatalf("readiness = %+v", parsed)
		}
	})
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics()
	metrics.IncFailureRateAlert()

	app := fiber.New()
	RegisterMetricsRoute(app, metrics.Handler())

	resp, body := performRequest(t, app, http.MethodGet, "/metrics", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "onboarding_engine_") {
		t.Fatalf("metrics body missing namespace: %s", string(body))
	}
}

type stubOnboardingService struct {
	submitFn func(ctx context.Context, req service.RunRequest, wait bool) (*service.Submission, error)
	getRunFn func(ctx context.Context, runID string) (*domain.RunSummary, error)
}

func (s *stubOnboardingService) Submit(ctx context.Context, req service.RunRequest, wait bool) (*service.Submission, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, req, wait)
	}
	return nil, errors.New("not implemented")
}

func (s *stubOnboardingService) GetRun(ctx context.Context, runID string) (*domain.RunSummary, error) {
	if s.getRunFn != nil {
		return s.getRunFn(ctx, runID)
	}
	return nil, errors.New("not implemented")
}

func newOnboardingTestApp(t *testing.T, svc OnboardingService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterOnboardingRoutes(app, svc); err != nil {
		t.Fatalf("RegisterOnboardingRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return doRequest(t, app, req)
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

type stubConnector struct {
	pingErr error
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn(c), nil
}

func (c stubConnector) Driver() driver.Driver {
	return stubDriver(c)
}

type stubDriver struct {
	pingErr error
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return stubConn(d), nil
}

type stubConn struct {
	pingErr error
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c stubConn) Close() error                        { return nil }
func (c stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c stubConn) Ping(context.Context) error          { return c.pingErr }
