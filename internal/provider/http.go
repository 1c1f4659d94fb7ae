package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
)

const userAgent = "onboarding-engine/1.0"

// httpService is the shared resty plumbing behind every live collaborator.
type httpService struct {
	service string
	client  *resty.Client
}

func newHTTPService(service, baseURL, token string, client *resty.Client) (*httpService, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("%s base url is required", service)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid %s base url: %w", service, err)
	}
	if client == nil {
		client = resty.New()
	}

	// Timeouts and retries belong to the retry adapter; callers only pass a client timeout explicitly.
	client.SetRetryCount(0)
	client.SetBaseURL(strings.TrimRight(trimmed, "/"))
	client.SetHeader("User-Agent", userAgent)
	client.SetHeader("Accept", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		client.SetAuthToken(token)
	}

	return &httpService{service: service, client: client}, nil
}

func (s *httpService) request(ctx context.Context) *resty.Request {
	return s.client.R().SetContext(ctx)
}

// check converts a resty result into a ProviderError, or nil on 2xx.
func (s *httpService) check(response *resty.Response, err error) error {
	if err != nil {
		return &ProviderError{
			Service:   s.service,
			Message:   "request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &ProviderError{
			Service:   s.service,
			Message:   "service returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &ProviderError{
		Service:    s.service,
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
		Cause:      statusCause(statusCode),
	}
}
