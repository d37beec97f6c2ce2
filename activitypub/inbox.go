package activitypub

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/deemkeen/fedifeed/db"
	"github.com/deemkeen/fedifeed/domain"
	"github.com/deemkeen/fedifeed/util"
	"github.com/microcosm-cc/bluemonday"
)

// ErrUnauthorized rejects an inbound activity whose signature could not be
// verified. The HTTP layer maps it to 401.
var ErrUnauthorized = errors.New("unauthorized")

// commentPolicy is the HTML allowlist applied to inbound reply content.
var commentPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("a", "p", "br")
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	return p
}()

// InboxResponse is an activity the processor wants delivered back to the
// sender's inbox, asynchronously, after the request has been acknowledged.
type InboxResponse struct {
	Inbox    string
	Activity map[string]interface{}
}

// Processor is the inbox state machine. Each inbound POST is one transition
// evaluated against current storage and following state.
type Processor struct {
	conf  *util.AppConfig
	self  *domain.LocalActor
	store *db.DB
	state *FollowingState
}

func NewProcessor(conf *util.AppConfig, self *domain.LocalActor, store *db.DB, state *FollowingState) *Processor {
	return &Processor{conf: conf, self: self, store: store, state: state}
}

// Process validates, authenticates and dispatches one inbound activity. The
// request carries the signature headers the sender set; its body has already
// been consumed by the caller.
func (p *Processor) Process(req *http.Request, activity *domain.InboxActivity) (*InboxResponse, error) {
	actor, err := ResolveActorByIRI(activity.Actor)
	if err != nil {
		// A Delete whose actor equals its object is a self-tombstone: the
		// account is gone, which is exactly why the fetch failed. Drop the
		// follower row and stop. Everything else is undeliverable-to-verify
		// and dropped silently.
		if activity.Kind == domain.ActivityDelete && activity.Actor != "" && activity.Actor == activity.ObjectID {
			if err := p.store.DeleteFollower(activity.ObjectID); err != nil {
				log.Printf("Inbox: Failed to delete follower %s: %v", activity.ObjectID, err)
			}
			return nil, nil
		}

		log.Printf("Inbox: Could not resolve actor %s: %v", activity.Actor, err)
		return nil, nil
	}

	if err := p.authenticate(actor, req, activity); err != nil {
		return nil, err
	}

	return p.dispatch(actor, activity)
}

func (p *Processor) authenticate(actor *Actor, req *http.Request, activity *domain.InboxActivity) error {
	publicKeyPem := actor.PublicKey.PublicKeyPem
	if publicKeyPem == "" {
		log.Printf("Inbox: Missing public key on actor %s, request rejected", actor.ID)
		return ErrUnauthorized
	}

	if err := VerifyRequest(req, publicKeyPem); err != nil {
		log.Printf("Inbox: Could not validate signature: %v. Request rejected.", err)
		log.Printf("Inbox: Headers: %v", req.Header)
		log.Printf("Inbox: Activity: %s", activity.Raw)
		return ErrUnauthorized
	}

	return nil
}

func (p *Processor) dispatch(actor *Actor, activity *domain.InboxActivity) (*InboxResponse, error) {
	switch activity.Kind {

	case domain.ActivityAccept:
		p.state.ConfirmFollow(activity.ObjectID, activity.Actor)
		log.Printf("Inbox: Following %s successful", activity.Actor)
		return nil, nil

	case domain.ActivityFollow:
		if err := p.store.UpsertFollower(activity.Actor); err != nil {
			return nil, err
		}
		log.Printf("Inbox: New follower %s", activity.Actor)

		return &InboxResponse{
			Inbox: actor.Inbox,
			Activity: map[string]interface{}{
				"@context": domain.ContextActivityStreams,
				"type":     "Accept",
				"actor":    p.self.ID(),
				"object":   json.RawMessage(activity.Raw),
			},
		}, nil

	case domain.ActivityUndo:
		if err := p.store.DeleteFollower(activity.Actor); err != nil {
			return nil, err
		}
		log.Printf("Inbox: %s unfollowed", activity.Actor)
		return nil, nil

	case domain.ActivityCreate:
		if !p.conf.Message.AcceptResponses {
			log.Printf("Inbox: Responses are disabled, dropping note from %s", activity.Actor)
			return nil, nil
		}
		return nil, p.handleReply(activity.Note)

	case domain.ActivityDelete:
		if activity.ObjectIsRef {
			log.Printf("Inbox: Tried to delete unsupported object: %s", activity.Raw)
			return nil, nil
		}
		// Tombstone might be a comment, try to delete it. Always done, even
		// when responses are disabled, in case they were enabled before.
		if err := p.store.DeleteComment(activity.ObjectID); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		log.Printf("Inbox: Unsupported message received: %s", activity.Raw)
		return nil, nil
	}
}

// handleReply persists an inbound reply to one of our notes as a comment.
// Notes that reply to nothing, or to something we never published, are
// dropped without error.
func (p *Processor) handleReply(note *domain.RemoteNote) error {
	if note.InReplyTo == "" {
		return nil
	}

	err, replyingTo := p.store.ReadNoteByURL(note.InReplyTo)
	if err != nil || replyingTo == nil {
		return nil
	}

	published, err := time.Parse(time.RFC3339, note.Published)
	if err != nil {
		published = time.Now().UTC()
	}

	comment := &domain.Comment{
		Id:         note.ID,
		NoteURL:    replyingTo.URL,
		Author:     note.AttributedTo,
		Published:  published,
		Content:    commentPolicy.Sanitize(note.Content),
		Visibility: ClassifyVisibility(note),
		Tags:       string(note.Tag),
	}

	if err := p.store.CreateComment(comment); err != nil {
		return err
	}

	log.Printf("Inbox: Saved comment %s on %s", comment.Id, comment.NoteURL)
	return nil
}
