package domain

import (
	"fmt"
	"strings"
)

// Category is the routing class derived from a contact's job title.
type Category string

const (
	CategoryPrimary      Category = "PRIMARY"
	CategoryMarketing    Category = "MARKETING"
	CategoryTechnical    Category = "TECHNICAL"
	CategoryUnclassified Category = "UNCLASSIFIED"
)

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	switch c {
	case CategoryPrimary, CategoryMarketing, CategoryTechnical, CategoryUnclassified:
		return true
	}
	return false
}

func ParseCategoryFromString(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid category %q", ErrValidation, s)
	}
	return c, nil
}

// CommitteeKind maps a category to the committee it is routed into.
func (c Category) CommitteeKind() (CommitteeKind, bool) {
	switch c {
	case CategoryPrimary:
		return CommitteeKindGovernance, true
	case CategoryMarketing:
		return CommitteeKindMarketing, true
	case CategoryTechnical:
		return CommitteeKindTechnical, true
	}
	return "", false
}

// CommitteeName is the canonical committee name for a category, empty when unclassified.
func (c Category) CommitteeName() string {
	switch c {
	case CategoryPrimary:
		return "Governing Board"
	case CategoryMarketing:
		return "Marketing Committee"
	case CategoryTechnical:
		return "Technical Committee"
	}
	return ""
}

// EmailTemplate is the welcome template used for a category.
func (c Category) EmailTemplate() string {
	switch c {
	case CategoryPrimary:
		return "welcome_governing_board"
	case CategoryMarketing:
		return "welcome_marketing_committee"
	case CategoryTechnical:
		return "welcome_technical_committee"
	}
	return "welcome_general"
}

// ClassificationResult is the deterministic routing decision for one title.
type ClassificationResult struct {
	Category  Category
	Committee string

	// CommitteeID is resolved against the project once the committee is known.
	CommitteeID string
}

func (r ClassificationResult) IsClassified() bool {
	return r.Category != CategoryUnclassified && r.Category != ""
}
