package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
)

type emailRequest struct {
	From      string            `json:"from"`
	To        string            `json:"to"`
	Subject   string            `json:"subject,omitempty"`
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables,omitempty"`
}

// EmailAPIClient is the live Mailer backed by a transactional email HTTP API.
type EmailAPIClient struct {
	http *httpService
	from string
}

func NewEmailAPIClient(baseURL, apiKey, from string, client *resty.Client) (*EmailAPIClient, error) {
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("email sender address is required")
	}
	svc, err := newHTTPService(ServiceEmail, baseURL, apiKey, client)
	if err != nil {
		return nil, err
	}
	return &EmailAPIClient{http: svc, from: strings.TrimSpace(from)}, nil
}

func (c *EmailAPIClient) Send(ctx context.Context, message EmailMessage) error {
	if strings.TrimSpace(message.To) == "" {
		return fmt.Errorf("%w: email recipient is required", domain.ErrValidation)
	}
	if strings.TrimSpace(message.Template) == "" {
		return fmt.Errorf("%w: email template is required", domain.ErrValidation)
	}

	response, err := c.http.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(emailRequest{
			From:      c.from,
			To:        message.To,
			Subject:   message.Subject,
			Template:  message.Template,
			Variables: message.Variables,
		}).
		Post("/messages")
	return c.http.check(response, err)
}
