package activitypub

import (
	"testing"

	"github.com/deemkeen/fedifeed/domain"
)

func TestClassifyVisibilityPublic(t *testing.T) {
	_, author := remoteActorServer(t, "alice")

	note := &domain.RemoteNote{
		AttributedTo: author.ID,
		To:           []string{domain.W3CPublicStream},
		Cc:           []string{author.Followers},
	}

	if got := ClassifyVisibility(note); got != domain.VisibilityPublic {
		t.Errorf("Expected public, got %s", got)
	}
}

func TestClassifyVisibilityPublicInCc(t *testing.T) {
	_, author := remoteActorServer(t, "alice")

	note := &domain.RemoteNote{
		AttributedTo: author.ID,
		To:           []string{author.Followers},
		Cc:           []string{domain.W3CPublicStream},
	}

	if got := ClassifyVisibility(note); got != domain.VisibilityPublic {
		t.Errorf("Expected public for unlisted addressing, got %s", got)
	}
}

func TestClassifyVisibilityFollowersOnly(t *testing.T) {
	_, author := remoteActorServer(t, "alice")

	note := &domain.RemoteNote{
		AttributedTo: author.ID,
		To:           []string{author.Followers},
	}

	if got := ClassifyVisibility(note); got != domain.VisibilityFollowersOnly {
		t.Errorf("Expected followers-only, got %s", got)
	}
}

func TestClassifyVisibilityMentionedOnly(t *testing.T) {
	_, author := remoteActorServer(t, "alice")

	note := &domain.RemoteNote{
		AttributedTo: author.ID,
		To:           []string{"https://example.com/actors/blog"},
	}

	if got := ClassifyVisibility(note); got != domain.VisibilityMentionedOnly {
		t.Errorf("Expected mentioned-only, got %s", got)
	}
}

func TestClassifyVisibilityUnresolvableAuthor(t *testing.T) {
	note := &domain.RemoteNote{
		AttributedTo: "http://127.0.0.1:1/users/ghost",
		To:           []string{domain.W3CPublicStream},
	}

	// Without the author document the safest tier wins, even for a note
	// addressed to the public stream.
	if got := ClassifyVisibility(note); got != domain.VisibilityMentionedOnly {
		t.Errorf("Expected mentioned-only for unresolvable author, got %s", got)
	}
}
