package provider

import (
	"context"

	"github.com/kursadbilgin/onboarding-engine/internal/domain"
)

// Service names used in errors, logs and metrics.
const (
	ServiceMembers    = "member-service"
	ServiceProjects   = "project-service"
	ServiceCommittees = "committee-service"
	ServiceChat       = "chat"
	ServiceEmail      = "email"
	ServiceCodeHost   = "code-host"
)

// Directory resolves member organizations and their contacts.
type Directory interface {
	ResolveOrganization(ctx context.Context, name string) (*domain.Organization, error)
	ListContacts(ctx context.Context, memberID string) ([]domain.Contact, error)
}

// Projects fetches project metadata together with its committees.
type Projects interface {
	GetProject(ctx context.Context, slug string) (*domain.Project, error)
}

// Committees manages committee membership.
type Committees interface {
	IsMember(ctx context.Context, projectID, committeeID, email string) (bool, error)
	AddMember(ctx context.Context, projectID, committeeID string, contact domain.Contact) error
}

// Chat invites contacts into chat channels.
type Chat interface {
	Invite(ctx context.Context, email, channel string) error
}

// Mailer sends templated email.
type Mailer interface {
	Send(ctx context.Context, message EmailMessage) error
}

// CodeHost files landscape update pull requests.
type CodeHost interface {
	OpenLandscapeUpdate(ctx context.Context, request LandscapeRequest) (*PullRequest, error)
}

type EmailMessage struct {
	To        string
	Template  string
	Subject   string
	Variables map[string]string
}

type LandscapeRequest struct {
	ProjectSlug  string
	Organization string
	OrgSlug      string
	LogoURL      string
	RunID        string
}

// LogoPath is the landscape repository path of the organization logo.
func (r LandscapeRequest) LogoPath() string {
	return "hosted_logos/" + r.OrgSlug + ".svg"
}

type PullRequest struct {
	Number int
	URL    string
	Branch string
}

// Collaborators bundles every outward port used by a workflow run.
type Collaborators struct {
	Directory  Directory
	Projects   Projects
	Committees Committees
	Chat       Chat
	Mailer     Mailer
	CodeHost   CodeHost
}
