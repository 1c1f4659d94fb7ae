package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
)

type slackInviteRequest struct {
	Email      string `json:"email"`
	ChannelIDs string `json:"channel_ids"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Slack reports most failures as HTTP 200 with ok=false.
var slackIdempotentErrors = map[string]bool{
	"already_invited": true,
	"already_in_team": true,
}

var slackTransientErrors = map[string]bool{
	"ratelimited":         true,
	"internal_error":      true,
	"service_unavailable": true,
	"request_timeout":     true,
}

// SlackClient is the live Chat collaborator.
type SlackClient struct {
	http *httpService
}

func NewSlackClient(baseURL, botToken string, client *resty.Client) (*SlackClient, error) {
	svc, err := newHTTPService(ServiceChat, baseURL, botToken, client)
	if err != nil {
		return nil, err
	}
	return &SlackClient{http: svc}, nil
}

func (c *SlackClient) Invite(ctx context.Context, email, channel string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(channel) == "" {
		return fmt.Errorf("%w: email and channel are required", domain.ErrValidation)
	}

	var out slackResponse
	response, err := c.http.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(slackInviteRequest{Email: email, ChannelIDs: strings.TrimPrefix(channel, "#")}).
		SetResult(&out).
		Post("/admin.users.invite")
	if err := c.http.check(response, err); err != nil {
		return err
	}

	if out.OK || slackIdempotentErrors[out.Error] {
		return nil
	}

	return &ProviderError{
		Service:    ServiceChat,
		StatusCode: response.StatusCode(),
		Message:    "slack invite rejected: " + out.Error,
		Transient:  slackTransientErrors[out.Error],
	}
}
