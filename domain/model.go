package domain

import (
	"time"

	"github.com/google/uuid"
)

// Visibility is the audience tier computed for an inbound reply.
type Visibility string

const (
	VisibilityPublic        Visibility = "PUBLIC"
	VisibilityFollowersOnly Visibility = "FOLLOWERS_ONLY"
	VisibilityMentionedOnly Visibility = "MENTIONED_ONLY"
)

const (
	W3CPublicStream        = "https://www.w3.org/ns/activitystreams#Public"
	ContextActivityStreams = "https://www.w3.org/ns/activitystreams"
	ContextSecurity        = "https://w3id.org/security/v1"
)

// Note is a published feed entry. The source URL is the natural key: a note
// is created exactly once per distinct entry URL and never mutated.
type Note struct {
	Id        uuid.UUID
	URL       string
	Name      string
	Published time.Time
	ReplyTo   string // empty when the note is not a reply
	Content   string
	Tags      []string
}

// Message wraps exactly one Note in an activity (usually Create). It is
// created together with its note and carries its own identity.
type Message struct {
	Id      uuid.UUID
	MsgType string
	Note    *Note
}

// Comment is a remote reply to a local note, keyed by the remote activity id.
type Comment struct {
	Id         string
	NoteURL    string
	Author     string
	Published  time.Time
	Content    string
	Visibility Visibility
	Tags       string // raw JSON tag list as received
}
