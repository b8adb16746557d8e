package eligibility

import (
	"context"
	"testing"

	"github.com/talentdesk/recruiter-notify/internal/domain"
	"github.com/talentdesk/recruiter-notify/internal/repository"
)

func TestEligibleRecipientsUnionsAndDedups(t *testing.T) {
	alice := domain.Recruiter{ID: "r1", Name: "Alice", Address: "alice@example.com"}
	bob := domain.Recruiter{ID: "r2", Name: "Bob", Address: "bob@example.com"}
	carol := domain.Recruiter{ID: "r3", Name: "Carol", Address: "carol@example.com"}

	repo := repository.NewMockRecruiterRepository(alice, bob, carol)
	repo.SetBookmarkers("job-1", alice, bob)
	repo.SetCandidateUploaders("job-1", bob, carol) // bob appears in both

	r := NewResolver(repo)
	got, err := r.EligibleRecipients(context.Background(), "job-1")
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"r1", "r2", "r3"}
	if len(got) != len(want) {
		t.Fatalf("got %d recipients, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestEligibleRecipientsEmptyJob(t *testing.T) {
	repo := repository.NewMockRecruiterRepository()
	r := NewResolver(repo)

	got, err := r.EligibleRecipients(context.Background(), "job-without-interest")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d recipients for a job nobody follows, want 0", len(got))
	}
}
