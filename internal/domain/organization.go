package domain

import (
	"fmt"
	"strings"
)

// Organization is a member entity resolved from the directory service.
type Organization struct {
	Name     string
	MemberID string
	Tier     string
	LogoURL  string
}

// Slug returns the lower-case, underscore separated form used for logo file names.
func (o Organization) Slug() string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(o.Name)), " ", "_")
}

// Contact is a person attached to a member organization.
type Contact struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	Title        string
	Organization string

	// Classification is set once by the classifier before the contact is routed.
	Classification *ClassificationResult
}

func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func (c Contact) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: contact id is required", ErrValidation)
	}
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("%w: contact %s has no email", ErrValidation, c.ID)
	}
	return nil
}

// CommitteeKind is the governance role a committee plays inside a project.
type CommitteeKind string

const (
	CommitteeKindGovernance CommitteeKind = "governance"
	CommitteeKindMarketing  CommitteeKind = "marketing"
	CommitteeKindTechnical  CommitteeKind = "technical"
)

func (k CommitteeKind) String() string { return string(k) }

func (k CommitteeKind) IsValid() bool {
	switch k {
	case CommitteeKindGovernance, CommitteeKindMarketing, CommitteeKindTechnical:
		return true
	}
	return false
}

// Committee is a governance subgroup of a project with its own chat channel.
type Committee struct {
	ID          string
	Name        string
	Kind        CommitteeKind
	ChatChannel string
}

// Project groups the committees a member organization is onboarded into.
type Project struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Committees  []Committee
}

// CommitteeFor returns the committee serving a contact category. Committees without an explicit kind
// are matched on their name.
func (p Project) CommitteeFor(category Category) (Committee, bool) {
	kind, ok := category.CommitteeKind()
	if !ok {
		return Committee{}, false
	}

	for _, committee := range p.Committees {
		if committee.Kind == kind {
			return committee, true
		}
	}

	for _, committee := range p.Committees {
		if committee.Kind.IsValid() {
			continue
		}
		if committeeKindFromName(committee.Name) == kind {
			return committee, true
		}
	}

	return Committee{}, false
}

// DisplayName falls back to the slug when the project service returned no name.
func (p Project) DisplayName() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return p.Slug
}

func committeeKindFromName(name string) CommitteeKind {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "governing") || strings.Contains(lower, "board"):
		return CommitteeKindGovernance
	case strings.Contains(lower, "marketing"):
		return CommitteeKindMarketing
	case strings.Contains(lower, "technical") || strings.Contains(lower, "tech"):
		return CommitteeKindTechnical
	}
	return ""
}
