package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
)

type memberDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Tier    string `json:"tier"`
	LogoURL string `json:"logo_url"`
}

type contactDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Title     string `json:"title"`
}

type memberListResponse struct {
	Data []memberDTO `json:"data"`
}

type contactListResponse struct {
	Data []contactDTO `json:"data"`
}

// MemberServiceClient is the live Directory backed by the member service REST API.
type MemberServiceClient struct {
	http *httpService
}

func NewMemberServiceClient(baseURL, apiKey string, client *resty.Client) (*MemberServiceClient, error) {
	svc, err := newHTTPService(ServiceMembers, baseURL, apiKey, client)
	if err != nil {
		return nil, err
	}
	return &MemberServiceClient{http: svc}, nil
}

func (c *MemberServiceClient) ResolveOrganization(ctx context.Context, name string) (*domain.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: organization name is required", domain.ErrValidation)
	}

	var out memberListResponse
	response, err := c.http.request(ctx).
		SetQueryParam("name", name).
		SetResult(&out).
		Get("/members")
	if err := c.http.check(response, err); err != nil {
		return nil, err
	}

	for _, member := range out.Data {
		if strings.EqualFold(strings.TrimSpace(member.Name), name) {
			return &domain.Organization{
				Name:     member.Name,
				MemberID: member.ID,
				Tier:     member.Tier,
				LogoURL:  member.LogoURL,
			}, nil
		}
	}

	return nil, &domain.OrganizationNotFoundError{Name: name}
}

func (c *MemberServiceClient) ListContacts(ctx context.Context, memberID string) ([]domain.Contact, error) {
	if strings.TrimSpace(memberID) == "" {
		return nil, fmt.Errorf("%w: member id is required", domain.ErrValidation)
	}

	var out contactListResponse
	response, err := c.http.request(ctx).
		SetPathParam("memberId", memberID).
		SetResult(&out).
		Get("/members/{memberId}/contacts")
	if err := c.http.check(response, err); err != nil {
		return nil, err
	}

	contacts := make([]domain.Contact, 0, len(out.Data))
	for _, dto := range out.Data {
		contacts = append(contacts, domain.Contact{
			ID:        dto.ID,
			FirstName: dto.FirstName,
			LastName:  dto.LastName,
			Email:     dto.Email,
			Title:     dto.Title,
		})
	}
	return contacts, nil
}
