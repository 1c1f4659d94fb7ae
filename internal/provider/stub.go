package provider

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed stubdata/dataset.yaml
var defaultDataset []byte

// Dataset seeds the in-memory collaborators used in local mode.
type Dataset struct {
	Organizations []StubOrganization `yaml:"organizations"`
	Projects      []StubProject      `yaml:"projects"`
}

type StubOrganization struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Tier     string        `yaml:"tier"`
	LogoURL  string        `yaml:"logo_url"`
	Contacts []StubContact `yaml:"contacts"`
}

type StubContact struct {
	ID        string `yaml:"id"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Email     string `yaml:"email"`
	Title     string `yaml:"title"`
}

type StubProject struct {
	ID          string          `yaml:"id"`
	Slug        string          `yaml:"slug"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Committees  []StubCommittee `yaml:"committees"`
}

type StubCommittee struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	ChatChannel string `yaml:"chat_channel"`
}

func LoadDataset(data []byte) (*Dataset, error) {
	var dataset Dataset
	if err := yaml.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to parse stub dataset: %w", err)
	}
	return &dataset, nil
}

// DefaultDataset returns the embedded sample organizations and projects.
func DefaultDataset() (*Dataset, error) {
	return LoadDataset(defaultDataset)
}

// ChatInvite is a recorded stub chat invitation.
type ChatInvite struct {
	Email   string
	Channel string
}

type StubOption func(*Stub)

// WithFailureRate makes committee, chat and email calls fail transiently at the given rate.
func WithFailureRate(rate float64) StubOption {
	return func(s *Stub) {
		if rate < 0 {
			rate = 0
		}
		if rate > 1 {
			rate = 1
		}
		s.failureRate = rate
	}
}

func WithRandFloat(fn func() float64) StubOption {
	return func(s *Stub) {
		if fn != nil {
			s.randFloat = fn
		}
	}
}

// WithLatency simulates network delay on every call.
func WithLatency(latency time.Duration) StubOption {
	return func(s *Stub) {
		s.latency = latency
	}
}

// Stub implements every collaborator in memory.
type Stub struct {
	dataset     *Dataset
	failureRate float64
	randFloat   func() float64
	latency     time.Duration

	mu          sync.Mutex
	memberships map[string]bool
	invites     []ChatInvite
	emails      []EmailMessage
	landscape   []LandscapeRequest
	nextPR      int
}

func NewStub(dataset *Dataset, opts ...StubOption) *Stub {
	if dataset == nil {
		dataset = &Dataset{}
	}
	s := &Stub{
		dataset:     dataset,
		randFloat:   rand.Float64,
		memberships: make(map[string]bool),
		nextPR:      1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stub) Collaborators() Collaborators {
	return Collaborators{
		Directory:  s,
		Projects:   s,
		Committees: s,
		Chat:       s,
		Mailer:     s,
		CodeHost:   s,
	}
}

func (s *Stub) ResolveOrganization(ctx context.Context, name string) (*domain.Organization, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	for _, org := range s.dataset.Organizations {
		if strings.EqualFold(org.Name, strings.TrimSpace(name)) {
			return &domain.Organization{
				Name:     org.Name,
				MemberID: org.ID,
				Tier:     org.Tier,
				LogoURL:  org.LogoURL,
			}, nil
		}
	}
	return nil, &domain.OrganizationNotFoundError{Name: name}
}

func (s *Stub) ListContacts(ctx context.Context, memberID string) ([]domain.Contact, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	for _, org := range s.dataset.Organizations {
		if org.ID != memberID {
			continue
		}
		contacts := make([]domain.Contact, 0, len(org.Contacts))
		for _, c := range org.Contacts {
			contacts = append(contacts, domain.Contact{
				ID:           c.ID,
				FirstName:    c.FirstName,
				LastName:     c.LastName,
				Email:        c.Email,
				Title:        c.Title,
				Organization: org.Name,
			})
		}
		return contacts, nil
	}

	return nil, &ProviderError{
		Service:    ServiceMembers,
		StatusCode: http.StatusNotFound,
		Message:    fmt.Sprintf("member %q not found", memberID),
		Cause:      domain.ErrNotFound,
	}
}

func (s *Stub) GetProject(ctx context.Context, slug string) (*domain.Project, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	for _, p := range s.dataset.Projects {
		if !strings.EqualFold(p.Slug, strings.TrimSpace(slug)) {
			continue
		}
		project := &domain.Project{
			ID:          p.ID,
			Slug:        p.Slug,
			Name:        p.Name,
			Description: p.Description,
			Committees:  make([]domain.Committee, 0, len(p.Committees)),
		}
		for _, c := range p.Committees {
			project.Committees = append(project.Committees, domain.Committee{
				ID:          c.ID,
				Name:        c.Name,
				Kind:        domain.CommitteeKind(strings.ToLower(c.Kind)),
				ChatChannel: c.ChatChannel,
			})
		}
		return project, nil
	}
	return nil, &domain.ProjectNotFoundError{Slug: slug}
}

func (s *Stub) IsMember(ctx context.Context, projectID, committeeID, email string) (bool, error) {
	if err := s.wait(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memberships[membershipKey(committeeID, email)], nil
}

func (s *Stub) AddMember(ctx context.Context, projectID, committeeID string, contact domain.Contact) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	if err := s.maybeFail(ServiceCommittees, "add committee member"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[membershipKey(committeeID, contact.Email)] = true
	return nil
}

func (s *Stub) Invite(ctx context.Context, email, channel string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	if err := s.maybeFail(ServiceChat, "invite"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites = append(s.invites, ChatInvite{Email: email, Channel: channel})
	return nil
}

func (s *Stub) Send(ctx context.Context, message EmailMessage) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	if err := s.maybeFail(ServiceEmail, "send"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails = append(s.emails, message)
	return nil
}

func (s *Stub) OpenLandscapeUpdate(ctx context.Context, request LandscapeRequest) (*PullRequest, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPR++
	s.landscape = append(s.landscape, request)
	return &PullRequest{
		Number: s.nextPR,
		URL:    fmt.Sprintf("https://github.com/%s/landscape/pull/%d", request.ProjectSlug, s.nextPR),
		Branch: landscapeBranch(request),
	}, nil
}

func (s *Stub) Invites() []ChatInvite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatInvite(nil), s.invites...)
}

func (s *Stub) Emails() []EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EmailMessage(nil), s.emails...)
}

func (s *Stub) LandscapeUpdates() []LandscapeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LandscapeRequest(nil), s.landscape...)
}

func (s *Stub) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Stub) maybeFail(service, operation string) error {
	if s.failureRate <= 0 {
		return nil
	}

	s.mu.Lock()
	roll := s.randFloat()
	s.mu.Unlock()

	if roll >= s.failureRate {
		return nil
	}
	return &ProviderError{
		Service:    service,
		StatusCode: http.StatusServiceUnavailable,
		Message:    "simulated outage during " + operation,
		Transient:  true,
	}
}

func membershipKey(committeeID, email string) string {
	return committeeID + ":" + strings.ToLower(strings.TrimSpace(email))
}
