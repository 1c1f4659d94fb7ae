package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
)

const (
	defaultLandscapeRepo = "landscape"
	defaultBaseBranch    = "main"
)

type gitRefResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type createRefRequest struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type putContentRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type contentResponse struct {
	SHA string `json:"sha"`
}

type createPullRequest struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body"`
}

type pullRequestResponse struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// GitHubLandscapeClient opens landscape logo pull requests through the GitHub REST API.
type GitHubLandscapeClient struct {
	http       *httpService
	owner      string
	repo       string
	baseBranch string
}

// NewGitHubLandscapeClient targets <owner>/landscape. An empty owner falls back to the project slug.
func NewGitHubLandscapeClient(baseURL, token, owner string, client *resty.Client) (*GitHubLandscapeClient, error) {
	svc, err := newHTTPService(ServiceCodeHost, baseURL, token, client)
	if err != nil {
		return nil, err
	}
	svc.client.SetHeader("Accept", "application/vnd.github+json")

	return &GitHubLandscapeClient{
		http:       svc,
		owner:      strings.TrimSpace(owner),
		repo:       defaultLandscapeRepo,
		baseBranch: defaultBaseBranch,
	}, nil
}

// OpenLandscapeUpdate is safe to call again after a partial failure: a branch, logo or pull
// request left behind by an earlier attempt is reused.
func (c *GitHubLandscapeClient) OpenLandscapeUpdate(ctx context.Context, request LandscapeRequest) (*PullRequest, error) {
	if strings.TrimSpace(request.OrgSlug) == "" {
		return nil, fmt.Errorf("%w: organization slug is required", domain.ErrValidation)
	}

	owner := c.owner
	if owner == "" {
		owner = request.ProjectSlug
	}
	repoParams := map[string]string{"owner": owner, "repo": c.repo}
	branch := landscapeBranch(request)

	if err := c.createBranch(ctx, repoParams, branch); err != nil {
		return nil, err
	}
	if err := c.uploadLogo(ctx, repoParams, branch, request); err != nil {
		return nil, err
	}

	pr, err := c.openPullRequest(ctx, repoParams, owner, branch, request)
	if err != nil {
		return nil, err
	}
	return &PullRequest{Number: pr.Number, URL: pr.HTMLURL, Branch: branch}, nil
}

func (c *GitHubLandscapeClient) createBranch(ctx context.Context, repoParams map[string]string, branch string) error {
	var base gitRefResponse
	response, err := c.http.request(ctx).
		SetPathParams(repoParams).
		SetPathParam("branch", c.baseBranch).
		SetResult(&base).
		Get("/repos/{owner}/{repo}/git/ref/heads/{branch}")
	if err := c.http.check(response, err); err != nil {
		return fmt.Errorf("resolve base branch: %w", err)
	}

	response, err = c.http.request(ctx).
		SetPathParams(repoParams).
		SetHeader("Content-Type", "application/json").
		SetBody(createRefRequest{Ref: "refs/heads/" + branch, SHA: base.Object.SHA}).
		Post("/repos/{owner}/{repo}/git/refs")
	err = c.http.check(response, err)
	if err != nil && !isUnprocessable(err, "reference already exists") {
		return fmt.Errorf("create branch: %w", err)
	}
	return nil
}

// uploadLogo creates the logo file, or updates it in place when an earlier attempt already wrote it.
func (c *GitHubLandscapeClient) uploadLogo(ctx context.Context, repoParams map[string]string, branch string, request LandscapeRequest) error {
	body := putContentRequest{
		Message: fmt.Sprintf("Update %s logo", request.Organization),
		Content: base64.StdEncoding.EncodeToString([]byte(request.LogoURL)),
		Branch:  branch,
	}
	path := "/repos/{owner}/{repo}/contents/" + request.LogoPath()

	response, err := c.http.request(ctx).
		SetPathParams(repoParams).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Put(path)
	err = c.http.check(response, err)
	if err == nil || !isUnprocessable(err, "sha") {
		if err != nil {
			return fmt.Errorf("upload logo: %w", err)
		}
		return nil
	}

	var existing contentResponse
	response, err = c.http.request(ctx).
		SetPathParams(repoParams).
		SetQueryParam("ref", branch).
		SetResult(&existing).
		Get(path)
	if err := c.http.check(response, err); err != nil {
		return fmt.Errorf("read existing logo: %w", err)
	}

	body.SHA = existing.SHA
	response, err = c.http.request(ctx).
		SetPathParams(repoParams).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Put(path)
	if err := c.http.check(response, err); err != nil {
		return fmt.Errorf("upload logo: %w", err)
	}
	return nil
}

func (c *GitHubLandscapeClient) openPullRequest(ctx context.Context, repoParams map[string]string, owner, branch string, request LandscapeRequest) (*pullRequestResponse, error) {
	var pr pullRequestResponse
	response, err := c.http.request(ctx).
		SetPathParams(repoParams).
		SetHeader("Content-Type", "application/json").
		SetBody(createPullRequest{
			Title: fmt.Sprintf("Add %s logo", request.Organization),
			Head:  branch,
			Base:  c.baseBranch,
			Body:  fmt.Sprintf("Adds the %s member logo to the %s landscape.", request.Organization, request.ProjectSlug),
		}).
		SetResult(&pr).
		Post("/repos/{owner}/{repo}/pulls")
	err = c.http.check(response, err)
	if err == nil {
		return &pr, nil
	}
	if !isUnprocessable(err, "pull request already exists") {
		return nil, fmt.Errorf("open pull request: %w", err)
	}

	var open []pullRequestResponse
	response, err = c.http.request(ctx).
		SetPathParams(repoParams).
		SetQueryParams(map[string]string{"head": owner + ":" + branch, "state": "open"}).
		SetResult(&open).
		Get("/repos/{owner}/{repo}/pulls")
	if err := c.http.check(response, err); err != nil {
		return nil, fmt.Errorf("find existing pull request: %w", err)
	}
	if len(open) == 0 {
		return nil, fmt.Errorf("find existing pull request: %w: no open pull request for %s", domain.ErrNotFound, branch)
	}
	return &open[0], nil
}

// isUnprocessable reports a 422 whose body mentions phrase. GitHub answers 422 for resources that
// already exist.
func isUnprocessable(err error, phrase string) bool {
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) || providerErr.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	return strings.Contains(strings.ToLower(providerErr.Message), phrase)
}

func landscapeBranch(request LandscapeRequest) string {
	branch := "onboarding/" + request.OrgSlug
	if id := strings.TrimSpace(request.RunID); id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		branch += "-" + id
	}
	return branch
}
