package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/onboarding-engine/internal/domain"
)

func newDefaultStub(t *testing.T, opts ...StubOption) *Stub {
	t.Helper()

	dataset, err := DefaultDataset()
	if err != nil {
		t.Fatalf("DefaultDataset() error = %v", err)
	}
	return NewStub(dataset, opts...)
}

func TestStubDirectory(t *testing.T) {
	t.Parallel()

	stub := newDefaultStub(t)
	ctx := context.Background()

	org, err := stub.ResolveOrganization(ctx, "acme corp")
	if err != nil {
		t.Fatalf("ResolveOrganization() unexpected error: %v", err)
	}
	if org.MemberID != "org-001" || org.Name != "Acme Corp" {
		t.Fatalf("ResolveOrganization() = %+v", org)
	}

	contacts, err := stub.ListContacts(ctx, org.MemberID)
	if err != nil {
		t.Fatalf("ListContacts() unexpected error: %v", err)
	}
	wantTitles := []string{"CEO", "VP Marketing", "Software Engineer"}
	if len(contacts) != len(wantTitles) {
		t.Fatalf("len(contacts) = %d, want %d", len(contacts), len(wantTitles))
	}
	for i, title := range wantTitles {
		if contacts[i].Title != title || contacts[i].Organization != "Acme Corp" {
			t.Fatalf("contacts[%d] = %+v, want title %q", i, contacts[i], title)
		}
	}

	_, err = stub.ResolveOrganization(ctx, "Unknown Corp")
	var notFound *domain.OrganizationNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("ResolveOrganization(Unknown Corp) error = %v, want OrganizationNotFoundError", err)
	}

	empty, err := stub.ResolveOrganization(ctx, "Cloud Systems Ltd")
	if err != nil {
		t.Fatalf("ResolveOrganization(Cloud Systems Ltd) error = %v", err)
	}
	contacts, err = stub.ListContacts(ctx, empty.MemberID)
	if err != nil || len(contacts) != 0 {
		t.Fatalf("ListContacts(empty org) = %v, %v; want no contacts", contacts, err)
	}
}

func TestStubProjects(t *testing.T) {
	t.Parallel()

	stub := newDefaultStub(t)

	project, err := stub.GetProject(context.Background(), "cncf")
	if err != nil {
		t.Fatalf("GetProject() unexpected error: %v", err)
	}
	if len(project.Committees) != 3 {
		t.Fatalf("len(committees) = %d, want 3", len(project.Committees))
	}

	envoy, err := stub.GetProject(context.Background(), "envoy")
	if err != nil {
		t.Fatalf("GetProject(envoy) unexpected error: %v", err)
	}
	if committee, ok := envoy.CommitteeFor(domain.CategoryTechnical); !ok || committee.ID != "comm-008" {
		t.Fatalf("envoy technical committee = %+v, %v", committee, ok)
	}
	if _, ok := envoy.CommitteeFor(domain.CategoryMarketing); ok {
		t.Fatalf("envoy should have no marketing committee")
	}

	_, err = stub.GetProject(context.Background(), "nope")
	var notFound *domain.ProjectNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("GetProject(nope) error = %v, want ProjectNotFoundError", err)
	}
}

func TestStubRecordsSideEffects(t *testing.T) {
	t.Parallel()

	stub := newDefaultStub(t)
	ctx := context.Background()
	contact := domain.Contact{ID: "cnt-001", Email: "John.Doe@acmecorp.com"}

	if err := stub.AddMember(ctx, "proj-001", "comm-001", contact); err != nil {
		t.Fatalf("AddMember() unexpected error: %v", err)
	}
	member, err := stub.IsMember(ctx, "proj-001", "comm-001", "john.doe@acmecorp.com")
	if err != nil || !member {
		t.Fatalf("IsMember() = %v, %v; want true", member, err)
	}

	if err := stub.Invite(ctx, contact.Email, "#cncf-governing-board"); err != nil {
		t.Fatalf("Invite() unexpected error: %v", err)
	}
	if err := stub.Send(ctx, EmailMessage{To: contact.Email, Template: "welcome_governing_board"}); err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	first, err := stub.OpenLandscapeUpdate(ctx, LandscapeRequest{ProjectSlug: "cncf", OrgSlug: "acme_corp"})
	if err != nil {
		t.Fatalf("OpenLandscapeUpdate() unexpected error: %v", err)
	}
	second, _ := stub.OpenLandscapeUpdate(ctx, LandscapeRequest{ProjectSlug: "cncf", OrgSlug: "acme_corp"})
	if second.Number != first.Number+1 {
		t.Fatalf("pull request numbers = %d, %d; want consecutive", first.Number, second.Number)
	}

	if len(stub.Invites()) != 1 || len(stub.Emails()) != 1 || len(stub.LandscapeUpdates()) != 2 {
		t.Fatalf("recorded invites/emails/landscape = %d/%d/%d", len(stub.Invites()), len(stub.Emails()), len(stub.LandscapeUpdates()))
	}
}

func TestStubFailureRate(t *testing.T) {
	t.Parallel()

	rolls := []float64{0.05, 0.9}
	next := 0
	stub := newDefaultStub(t,
		WithFailureRate(0.1),
		WithRandFloat(func() float64 {
			roll := rolls[next%len(rolls)]
			next++
			return roll
		}),
	)

	err := stub.Invite(context.Background(), "a@b.test", "#general")
	if !IsTransient(err) {
		t.Fatalf("first Invite() error = %v, want transient", err)
	}
	if err := stub.Invite(context.Background(), "a@b.test", "#general"); err != nil {
		t.Fatalf("second Invite() unexpected error: %v", err)
	}
}

func TestStubLatencyHonoursContext(t *testing.T) {
	t.Parallel()

	stub := newDefaultStub(t, WithLatency(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := stub.ResolveOrganization(ctx, "Acme Corp")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ResolveOrganization() error = %v, want deadline exceeded", err)
	}
}
