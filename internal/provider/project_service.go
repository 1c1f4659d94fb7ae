package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
)

type projectDTO struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type committeeDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	ChatChannel string `json:"chat_channel"`
}

type committeeMemberRequest struct {
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Title        string `json:"title,omitempty"`
	Organization string `json:"organization,omitempty"`
}

type projectListResponse struct {
	Data []projectDTO `json:"data"`
}

type committeeListResponse struct {
	Data []committeeDTO `json:"data"`
}

type committeeMemberListResponse struct {
	Data []struct {
		Email string `json:"email"`
	} `json:"data"`
}

// ProjectServiceClient is the live Projects and Committees collaborator.
type ProjectServiceClient struct {
	http *httpService
}

func NewProjectServiceClient(baseURL, apiKey string, client *resty.Client) (*ProjectServiceClient, error) {
	svc, err := newHTTPService(ServiceProjects, baseURL, apiKey, client)
	if err != nil {
		return nil, err
	}
	return &ProjectServiceClient{http: svc}, nil
}

func (c *ProjectServiceClient) GetProject(ctx context.Context, slug string) (*domain.Project, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, fmt.Errorf("%w: project slug is required", domain.ErrValidation)
	}

	var projects projectListResponse
	response, err := c.http.request(ctx).
		SetQueryParam("slug", slug).
		SetResult(&projects).
		Get("/projects")
	if err := c.http.check(response, err); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.ProjectNotFoundError{Slug: slug, Cause: err}
		}
		return nil, err
	}

	var found *projectDTO
	for i := range projects.Data {
		if strings.EqualFold(projects.Data[i].Slug, slug) {
			found = &projects.Data[i]
			break
		}
	}
	if found == nil {
		return nil, &domain.ProjectNotFoundError{Slug: slug}
	}

	var committees committeeListResponse
	response, err = c.http.request(ctx).
		SetPathParam("projectId", found.ID).
		SetResult(&committees).
		Get("/projects/{projectId}/committees")
	if err := c.http.check(response, err); err != nil {
		return nil, err
	}

	project := &domain.Project{
		ID:          found.ID,
		Slug:        found.Slug,
		Name:        found.Name,
		Description: found.Description,
		Committees:  make([]domain.Committee, 0, len(committees.Data)),
	}
	for _, dto := range committees.Data {
		project.Committees = append(project.Committees, domain.Committee{
			ID:          dto.ID,
			Name:        dto.Name,
			Kind:        domain.CommitteeKind(strings.ToLower(strings.TrimSpace(dto.Type))),
			ChatChannel: dto.ChatChannel,
		})
	}
	return project, nil
}

func (c *ProjectServiceClient) IsMember(ctx context.Context, projectID, committeeID, email string) (bool, error) {
	var out committeeMemberListResponse
	response, err := c.http.request(ctx).
		SetPathParams(map[string]string{"projectId": projectID, "committeeId": committeeID}).
		SetQueryParam("email", email).
		SetResult(&out).
		Get("/projects/{projectId}/committees/{committeeId}/committee_members")
	if err := c.committeeError(c.http.check(response, err)); err != nil {
		return false, err
	}

	for _, member := range out.Data {
		if strings.EqualFold(member.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (c *ProjectServiceClient) AddMember(ctx context.Context, projectID, committeeID string, contact domain.Contact) error {
	if err := contact.Validate(); err != nil {
		return err
	}

	response, err := c.http.request(ctx).
		SetPathParams(map[string]string{"projectId": projectID, "committeeId": committeeID}).
		SetHeader("Content-Type", "application/json").
		SetBody(committeeMemberRequest{
			Email:        contact.Email,
			FirstName:    contact.FirstName,
			LastName:     contact.LastName,
			Title:        contact.Title,
			Organization: contact.Organization,
		}).
		Post("/projects/{projectId}/committees/{committeeId}/committee_members")
	return c.committeeError(c.http.check(response, err))
}

func (c *ProjectServiceClient) committeeError(err error) error {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		providerErr.Service = ServiceCommittees
	}
	return err
}
