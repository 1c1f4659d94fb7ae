// Package classifier maps free-text job titles to onboarding categories.
package classifier

import (
	"strings"
	"unicode"

	"github.com/kursadbilgin/onboarding-engine/internal/domain"
)

type rule struct {
	category domain.Category
	// tokens must appear as whole words; short acronyms would otherwise match inside
	// unrelated words ("director" contains "cto").
	tokens []string
	// keywords match anywhere in the title.
	keywords []string
}

// Priority order: first match wins.
var rules = []rule{
	{
		category: domain.CategoryPrimary,
		tokens:   []string{"ceo", "cto", "cfo"},
		keywords: []string{"chief"},
	},
	{
		category: domain.CategoryMarketing,
		tokens:   []string{"pr"},
		keywords: []string{"marketing", "communications"},
	},
	{
		category: domain.CategoryTechnical,
		keywords: []string{"engineer", "developer", "architect", "technical"},
	},
}

// Classify returns the category and committee for a title. It is total and deterministic: the same
// title always yields the same result and unmatched input is Unclassified.
func Classify(title string) domain.ClassificationResult {
	lower := strings.ToLower(strings.TrimSpace(title))
	if lower == "" {
		return unclassified()
	}

	words := tokenize(lower)
	for _, r := range rules {
		if r.matches(lower, words) {
			return domain.ClassificationResult{
				Category:  r.category,
				Committee: r.category.CommitteeName(),
			}
		}
	}

	return unclassified()
}

// ClassifyContact sets the contact's classification and returns it.
func ClassifyContact(contact *domain.Contact) domain.ClassificationResult {
	result := Classify(contact.Title)
	contact.Classification = &result
	return result
}

func (r rule) matches(lower string, words map[string]struct{}) bool {
	for _, token := range r.tokens {
		if _, ok := words[token]; ok {
			return true
		}
	}
	for _, keyword := range r.keywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func tokenize(lower string) map[string]struct{} {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		words[field] = struct{}{}
	}
	return words
}

func unclassified() domain.ClassificationResult {
	return domain.ClassificationResult{Category: domain.CategoryUnclassified}
}
