package activitypub

import (
	"github.com/deemkeen/fedifeed/domain"
)

// ClassifyVisibility maps an inbound note's addressing to a visibility tier.
// An unresolvable author yields the most restrictive tier.
func ClassifyVisibility(note *domain.RemoteNote) domain.Visibility {
	author, err := ResolveActorByIRI(note.AttributedTo)
	if err != nil {
		return domain.VisibilityMentionedOnly
	}

	recipients := note.Recipients()

	if containsIRI(recipients, domain.W3CPublicStream) {
		return domain.VisibilityPublic
	}

	if author.Followers != "" && containsIRI(recipients, author.Followers) {
		return domain.VisibilityFollowersOnly
	}

	return domain.VisibilityMentionedOnly
}

func containsIRI(iris []string, iri string) bool {
	for _, candidate := range iris {
		if candidate == iri {
			return true
		}
	}
	return false
}
