package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"github.com/kursadbilgin/onboarding-engine/internal/report"
	"github.com/kursadbilgin/onboarding-engine/internal/service"
)

type OnboardingService interface {
	Submit(ctx context.Context, req service.RunRequest, wait bool) (*service.Submission, error)
	GetRun(ctx context.Context, runID string) (*domain.RunSummary, error)
}

type OnboardingHandler struct {
	service OnboardingService
}

func NewOnboardingHandler(service OnboardingService) (*OnboardingHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("onboarding service is required")
	}
	return &OnboardingHandler{service: service}, nil
}

func RegisterOnboardingRoutes(router fiber.Router, service OnboardingService) error {
	h, err := NewOnboardingHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/onboardings", h.CreateOnboarding)
	v1.Get("/runs/:id", h.GetRun)

	return nil
}

func RegisterMetricsRoute(router fiber.Router, metricsHandler http.Handler) {
	router.Get("/metrics", adaptor.HTTPHandler(metricsHandler))
}

type createOnboardingRequest struct {
	Organization  string `json:"organization"`
	Project       string `json:"project"`
	BatchSize     int    `json:"batchSize,omitempty"`
	CorrelationID string `json:"correlationId"`
	Wait          bool   `json:"wait"`
}

type acceptedResponse struct {
	RunID         string `json:"runId"`
	CorrelationID string `json:"correlationId"`
	Status        string `json:"status"`
	Queued        bool   `json:"queued"`
	Location      string `json:"location"`
}

// CreateOnboarding accepts a run. With wait set, in the body or as ?wait=true, the run executes
// inline and the full report is returned.
func (h *OnboardingHandler) CreateOnboarding(c *fiber.Ctx) error {
	var req createOnboardingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	correlationID := strings.TrimSpace(req.CorrelationID)
	if correlationID == "" {
		correlationID = requestCorrelationID(c)
	}
	wait := req.Wait || c.QueryBool("wait", false)

	submission, err := h.service.Submit(c.UserContext(), service.RunRequest{
		Organization:  strings.TrimSpace(req.Organization),
		ProjectSlug:   strings.TrimSpace(req.Project),
		BatchSize:     req.BatchSize,
		CorrelationID: correlationID,
	}, wait)
	if err != nil {
		return toHTTPError(err)
	}

	if submission.Run != nil {
		return c.Status(fiber.StatusOK).JSON(report.NewDocument(submission.Run.Summary(), submission.Run.Metrics))
	}

	c.Location("/v1/runs/" + submission.RunID)
	return c.Status(fiber.StatusAccepted).JSON(acceptedResponse{
		RunID:         submission.RunID,
		CorrelationID: submission.CorrelationID,
		Status:        domain.RunStatusRunning.String(),
		Queued:        submission.Queued,
		Location:      "/v1/runs/" + submission.RunID,
	})
}

func (h *OnboardingHandler) GetRun(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	summary, err := h.service.GetRun(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(report.NewDocument(*summary, nil))
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPersistence):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
