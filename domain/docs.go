package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/deemkeen/fedifeed/util"
)

// Every outgoing ActivityPub document gets an explicit serializer here. Each
// one prepends the @context array itself; storage-only fields simply have no
// JSON mapping.

type PublicKeyDoc struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

type ImageDoc struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType,omitempty"`
	URL       string `json:"url"`
}

type PropertyValueDoc struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type TagDoc struct {
	Type string `json:"type"`
	Href string `json:"href"`
	Name string `json:"name"`
}

// MakeHashtag builds a Hashtag tag object pointing at the local tag page.
func MakeHashtag(domain, name string) TagDoc {
	return TagDoc{
		Type: "Hashtag",
		Href: fmt.Sprintf("https://%s/tags/%s", domain, name),
		Name: "#" + name,
	}
}

type ActorDoc struct {
	Context           []string           `json:"@context"`
	ID                string             `json:"id"`
	URL               string             `json:"url"`
	Type              string             `json:"type"`
	PreferredUsername string             `json:"preferredUsername"`
	Name              string             `json:"name"`
	Summary           string             `json:"summary"`
	Icon              *ImageDoc          `json:"icon,omitempty"`
	Image             *ImageDoc          `json:"image,omitempty"`
	Attachment        []PropertyValueDoc `json:"attachment"`
	Following         string             `json:"following"`
	Followers         string             `json:"followers"`
	Inbox             string             `json:"inbox"`
	Outbox            string             `json:"outbox"`
	PublicKey         PublicKeyDoc       `json:"publicKey"`
}

func (a *LocalActor) Doc() ActorDoc {
	var icon, image *ImageDoc
	if a.Avatar != "" {
		icon = &ImageDoc{Type: "Image", URL: a.Avatar}
	}
	if a.Header != "" {
		image = &ImageDoc{Type: "Image", URL: a.Header}
	}

	attachments := make([]PropertyValueDoc, 0, len(a.Attachments))
	keys := make([]string, 0, len(a.Attachments))
	for key := range a.Attachments {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		attachments = append(attachments, PropertyValueDoc{
			Type:  "PropertyValue",
			Name:  key,
			Value: util.RenderContent(a.Attachments[key]),
		})
	}

	return ActorDoc{
		Context:           []string{ContextActivityStreams, ContextSecurity},
		ID:                a.ID(),
		URL:               fmt.Sprintf("https://%s", a.Domain),
		Type:              "Person",
		PreferredUsername: a.Username,
		Name:              a.DisplayName,
		Summary:           util.RenderContent(a.Summary),
		Icon:              icon,
		Image:             image,
		Attachment:        attachments,
		Following:         a.FollowingIRI(),
		Followers:         a.FollowersIRI(),
		Inbox:             a.InboxIRI(),
		Outbox:            a.OutboxIRI(),
		PublicKey: PublicKeyDoc{
			ID:           a.KeyID(),
			Owner:        a.ID(),
			PublicKeyPem: a.PublicKeyPem,
		},
	}
}

type NoteDoc struct {
	Context      []string `json:"@context,omitempty"`
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Type         string   `json:"type"`
	MediaType    string   `json:"mediaType"`
	InReplyTo    string   `json:"inReplyTo,omitempty"`
	Published    string   `json:"published"`
	URL          string   `json:"url"`
	AttributedTo string   `json:"attributedTo"`
	To           []string `json:"to"`
	Cc           []string `json:"cc"`
	Content      string   `json:"content"`
	Tag          []TagDoc `json:"tag"`
}

// Doc serializes a note for federation. The note is addressed to the public
// stream and cc'd to the configured group inboxes plus the followers
// collection.
func (note *Note) Doc(actor *LocalActor, groups []string) NoteDoc {
	tags := make([]TagDoc, 0, len(note.Tags))
	for _, tag := range note.Tags {
		tags = append(tags, MakeHashtag(actor.Domain, tag))
	}

	cc := make([]string, 0, len(groups)+1)
	cc = append(cc, groups...)
	cc = append(cc, actor.FollowersIRI())

	return NoteDoc{
		Context:      []string{ContextActivityStreams},
		ID:           note.URL,
		Name:         note.Name,
		Type:         "Note",
		MediaType:    "text/html",
		InReplyTo:    note.ReplyTo,
		Published:    note.Published.UTC().Format(time.RFC3339),
		URL:          note.URL,
		AttributedTo: actor.ID(),
		To:           []string{W3CPublicStream},
		Cc:           cc,
		Content:      util.RenderContent(note.Content),
		Tag:          tags,
	}
}

type MessageDoc struct {
	Context   []string `json:"@context,omitempty"`
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Actor     string   `json:"actor"`
	Published string   `json:"published"`
	To        []string `json:"to"`
	Cc        []string `json:"cc"`
	Object    NoteDoc  `json:"object"`
}

func (m *Message) Doc(actor *LocalActor, groups []string) MessageDoc {
	object := m.Note.Doc(actor, groups)
	object.Context = nil // nested objects inherit the activity context

	return MessageDoc{
		Context:   []string{ContextActivityStreams},
		ID:        fmt.Sprintf("https://%s/messages/%s", actor.Domain, m.Id),
		Type:      m.MsgType,
		Actor:     actor.ID(),
		Published: m.Note.Published.UTC().Format(time.RFC3339),
		To:        []string{W3CPublicStream},
		Cc:        object.Cc,
		Object:    object,
	}
}
