package domain

import (
	"encoding/json"
	"fmt"
)

// ActivityKind is the closed set of inbound activity shapes the inbox
// processor dispatches on. Anything else is ActivityUnsupported.
type ActivityKind uint

const (
	ActivityUnsupported ActivityKind = iota
	ActivityFollow
	ActivityAccept
	ActivityUndo
	ActivityCreate
	ActivityDelete
)

func (k ActivityKind) String() string {
	switch k {
	case ActivityFollow:
		return "Follow"
	case ActivityAccept:
		return "Accept(Follow)"
	case ActivityUndo:
		return "Undo(Follow)"
	case ActivityCreate:
		return "Create(Note)"
	case ActivityDelete:
		return "Delete"
	default:
		return "Unsupported"
	}
}

// RemoteNote is the object of an inbound Create activity.
type RemoteNote struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	InReplyTo    string          `json:"inReplyTo"`
	Published    string          `json:"published"`
	AttributedTo string          `json:"attributedTo"`
	Content      string          `json:"content"`
	To           []string        `json:"to"`
	Cc           []string        `json:"cc"`
	Tag          json.RawMessage `json:"tag"`
}

// Recipients returns the union of the note's to and cc addressing.
func (n *RemoteNote) Recipients() []string {
	recipients := make([]string, 0, len(n.To)+len(n.Cc))
	recipients = append(recipients, n.To...)
	recipients = append(recipients, n.Cc...)
	return recipients
}

// InboxActivity is one inbound activity, already classified.
type InboxActivity struct {
	Kind        ActivityKind
	ID          string
	Type        string // raw type string, for logging
	Actor       string
	ObjectID    string
	ObjectIsRef bool // true when the object was a bare IRI string
	Note        *RemoteNote
	Raw         json.RawMessage
}

type activityEnvelope struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Actor  string          `json:"actor"`
	Object json.RawMessage `json:"object"`
}

type objectEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ParseInboxActivity classifies raw activity JSON into the tagged union.
// Unknown or mismatched type combinations yield ActivityUnsupported, never
// an error; an error means the body was not an activity at all.
func ParseInboxActivity(body []byte) (*InboxActivity, error) {
	var envelope activityEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse activity: %w", err)
	}

	activity := &InboxActivity{
		ID:    envelope.ID,
		Type:  envelope.Type,
		Actor: envelope.Actor,
		Raw:   json.RawMessage(body),
	}

	// The object is either a bare IRI string or an embedded object.
	var objectRef string
	var object objectEnvelope
	if len(envelope.Object) > 0 {
		if err := json.Unmarshal(envelope.Object, &objectRef); err == nil {
			activity.ObjectID = objectRef
			activity.ObjectIsRef = true
		} else if err := json.Unmarshal(envelope.Object, &object); err == nil {
			activity.ObjectID = object.ID
		}
	}

	switch envelope.Type {
	case "Follow":
		activity.Kind = ActivityFollow
	case "Accept":
		if object.Type == "Follow" {
			activity.Kind = ActivityAccept
		}
	case "Undo":
		if object.Type == "Follow" {
			activity.Kind = ActivityUndo
		}
	case "Create":
		if object.Type == "Note" {
			var note RemoteNote
			if err := json.Unmarshal(envelope.Object, &note); err != nil {
				return nil, fmt.Errorf("failed to parse Create object: %w", err)
			}
			activity.Kind = ActivityCreate
			activity.Note = &note
		}
	case "Delete":
		activity.Kind = ActivityDelete
	}

	return activity, nil
}
