package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kursadbilgin/onboarding-engine/internal/domain"
)

func TestSlackClientInvite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		body          string
		wantErr       bool
		wantTransient bool
	}{
		{name: "ok", body: `{"ok":true}`},
		{name: "already invited is idempotent", body: `{"ok":false,"error":"already_invited"}`},
		{name: "rate limited is transient", body: `{"ok":false,"error":"ratelimited"}`, wantErr: true, wantTransient: true},
		{name: "invalid email is permanent", body: `{"ok":false,"error":"invalid_email"}`, wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var got slackInviteRequest
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/admin.users.invite" {
					t.Errorf("path = %s, want /admin.users.invite", r.URL.Path)
				}
				if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
					t.Errorf("failed to decode request body: %v", err)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client, err := NewSlackClient(server.URL, "xoxb-token", nil)
			if err != nil {
				t.Fatalf("NewSlackClient() error = %v", err)
			}

			err = client.Invite(context.Background(), "jane@acme.test", "#cncf-marketing")
			if got.ChannelIDs != "cncf-marketing" {
				t.Fatalf("channel_ids = %q, want cncf-marketing", got.ChannelIDs)
			}
			if (err != nil) != tc.wantErr {
				t.Fatalf("Invite() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && IsTransient(err) != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", IsTransient(err), tc.wantTransient)
			}
		})
	}
}

func TestSlackClientInviteValidation(t *testing.T) {
	t.Parallel()

	client, err := NewSlackClient("http://127.0.0.1:1", "", nil)
	if err != nil {
		t.Fatalf("NewSlackClient() error = %v", err)
	}

	err = client.Invite(context.Background(), "", "#general")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Invite() error = %v, want ErrValidation", err)
	}
}

func TestEmailAPIClientSend(t *testing.T) {
	t.Parallel()

	var got emailRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messages" {
			t.Errorf("request = %s %s, want POST /messages", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client, err := NewEmailAPIClient(server.URL, "key", "onboarding@foundation.test", nil)
	if err != nil {
		t.Fatalf("NewEmailAPIClient() error = %v", err)
	}

	err = client.Send(context.Background(), EmailMessage{
		To:        "john@acme.test",
		Template:  "welcome_governing_board",
		Variables: map[string]string{"first_name": "John"},
	})
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	if got.From != "onboarding@foundation.test" || got.Template != "welcome_governing_board" {
		t.Fatalf("Send() body = %+v", got)
	}
	if got.Variables["first_name"] != "John" {
		t.Fatalf("Send() variables = %+v", got.Variables)
	}
}

func TestEmailAPIClientSendServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewEmailAPIClient(server.URL, "", "onboarding@foundation.test", nil)
	if err != nil {
		t.Fatalf("NewEmailAPIClient() error = %v", err)
	}

	err = client.Send(context.Background(), EmailMessage{To: "john@acme.test", Template: "welcome_general"})
	if !IsTransient(err) {
		t.Fatalf("IsTransient(%v) = false, want true", err)
	}
}

func TestNewEmailAPIClientRequiresSender(t *testing.T) {
	t.Parallel()

	if _, err := NewEmailAPIClient("http://localhost", "", " ", nil); err == nil {
		t.Fatal("expected error for empty sender")
	}
}
