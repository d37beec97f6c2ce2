package activitypub

import (
	"fmt"
	"log"
	"sync"

	"github.com/deemkeen/fedifeed/domain"
	"github.com/deemkeen/fedifeed/util"
	"github.com/google/uuid"
)

// FollowEntry is one confirmed follow: the id of our Follow activity and the
// actor it was sent to.
type FollowEntry struct {
	FollowID string
	Actor    string
}

// FollowingState is the process-wide record of accounts this actor follows.
// It is created at server startup, passed by handle into the handlers and
// the shutdown hook, and never persisted.
type FollowingState struct {
	mu        sync.Mutex
	pending   map[string]string // follow activity id -> actor IRI
	confirmed []FollowEntry
	once      sync.Once
}

func NewFollowingState() *FollowingState {
	return &FollowingState{pending: make(map[string]string)}
}

// BootstrapOnce sends Follow requests to every configured account. Only the
// first call does anything; the work runs in the background.
func (s *FollowingState) BootstrapOnce(self *domain.LocalActor) {
	s.once.Do(func() {
		go s.followUsers(self, self.Following)
	})
}

func (s *FollowingState) followUsers(self *domain.LocalActor, users []string) {
	for _, user := range users {
		username, userDomain, err := util.ParseHandle(user)
		if err != nil {
			log.Printf("Cannot follow %s: %v", user, err)
			continue
		}

		actor, err := ResolveActorByHandle(userDomain, username)
		if err != nil {
			log.Printf("Cannot follow %s: not found", user)
			continue
		}

		if actor.Inbox == "" {
			log.Printf("Cannot follow %s: no inbox", user)
			continue
		}

		followID := fmt.Sprintf("https://%s/%s", self.Domain, uuid.New())
		s.addPending(followID, actor.ID)

		err = Deliver(self, actor.Inbox, map[string]interface{}{
			"id":     followID,
			"type":   "Follow",
			"actor":  self.ID(),
			"object": actor.ID,
		})
		if err != nil {
			log.Printf("Cannot follow %s: %v", user, err)
			s.removePending(followID)
			continue
		}

		log.Printf("Sent follow request to %s", actor.ID)
	}
}

func (s *FollowingState) addPending(followID, actorIRI string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[followID] = actorIRI
}

func (s *FollowingState) removePending(followID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, followID)
}

// ConfirmFollow records an accepted follow. The actor from the Accept wins
// over whatever the pending entry recorded.
func (s *FollowingState) ConfirmFollow(followID, actorIRI string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if actorIRI == "" {
		actorIRI = s.pending[followID]
	}
	delete(s.pending, followID)

	for _, entry := range s.confirmed {
		if entry.FollowID == followID {
			return
		}
	}

	s.confirmed = append(s.confirmed, FollowEntry{FollowID: followID, Actor: actorIRI})
}

// Confirmed returns the actor IRIs of every confirmed follow, for the
// following collection.
func (s *FollowingState) Confirmed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	actors := make([]string, 0, len(s.confirmed))
	for _, entry := range s.confirmed {
		actors = append(actors, entry.Actor)
	}
	return actors
}

func (s *FollowingState) entries() []FollowEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FollowEntry(nil), s.confirmed...)
}

// Shutdown sends a best-effort Undo(Follow) for every confirmed follow.
// Failures are logged, never fatal.
func (s *FollowingState) Shutdown(self *domain.LocalActor) {
	for _, entry := range s.entries() {
		actor, err := ResolveActorByIRI(entry.Actor)
		if err != nil {
			log.Printf("Cannot unfollow %s: not found", entry.Actor)
			continue
		}

		if actor.Inbox == "" {
			log.Printf("Cannot unfollow %s: no inbox", entry.Actor)
			continue
		}

		err = Deliver(self, actor.Inbox, map[string]interface{}{
			"id":    fmt.Sprintf("https://%s/%s", self.Domain, uuid.New()),
			"type":  "Undo",
			"actor": self.ID(),
			"object": map[string]interface{}{
				"id":     entry.FollowID,
				"type":   "Follow",
				"actor":  self.ID(),
				"object": actor.ID,
			},
		})
		if err != nil {
			log.Printf("Cannot unfollow %s: %v", entry.Actor, err)
			continue
		}

		log.Printf("Unfollowed %s", actor.ID)
	}
}
