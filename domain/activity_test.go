package domain

import (
	"testing"
)

func TestParseInboxActivityFollow(t *testing.T) {
	body := []byte(`{
		"id": "https://social.example/activities/1",
		"type": "Follow",
		"actor": "https://social.example/users/alice",
		"object": "https://example.com/actors/blog"
	}`)

	activity, err := ParseInboxActivity(body)
	if err != nil {
		t.Fatalf("ParseInboxActivity failed: %v", err)
	}
	if activity.Kind != ActivityFollow {
		t.Errorf("Expected Follow, got %s", activity.Kind)
	}
	if activity.Actor != "https://social.example/users/alice" {
		t.Errorf("Unexpected actor: %s", activity.Actor)
	}
	if !activity.ObjectIsRef || activity.ObjectID != "https://example.com/actors/blog" {
		t.Errorf("Expected bare IRI object, got %q (ref=%v)", activity.ObjectID, activity.ObjectIsRef)
	}
}

func TestParseInboxActivityAcceptRequiresFollowObject(t *testing.T) {
	accept := []byte(`{
		"type": "Accept",
		"actor": "https://social.example/users/alice",
		"object": {"id": "https://example.com/abc", "type": "Follow"}
	}`)

	activity, err := ParseInboxActivity(accept)
	if err != nil {
		t.Fatalf("ParseInboxActivity failed: %v", err)
	}
	if activity.Kind != ActivityAccept {
		t.Errorf("Expected Accept, got %s", activity.Kind)
	}
	if activity.ObjectID != "https://example.com/abc" {
		t.Errorf("Unexpected object id: %s", activity.ObjectID)
	}

	// Accept of anything but a Follow is unsupported
	other := []byte(`{
		"type": "Accept",
		"actor": "https://social.example/users/alice",
		"object": {"id": "https://example.com/note/1", "type": "Note"}
	}`)
	activity, err = ParseInboxActivity(other)
	if err != nil {
		t.Fatalf("ParseInboxActivity failed: %v", err)
	}
	if activity.Kind != ActivityUnsupported {
		t.Errorf("Expected Unsupported, got %s", activity.Kind)
	}
}

func TestParseInboxActivityUndo(t *testing.T) {
	body := []byte(`{
		"type": "Undo",
		"actor": "https://social.example/users/alice",
		"object": {"type": "Follow", "object": "https://example.com/actors/blog"}
	}`)

	activity, err := ParseInboxActivity(body)
	if err != nil {
		t.Fatalf("ParseInboxActivity failed: %v", err)
	}
	if activity.Kind != ActivityUndo {
		t.Errorf("Expected Undo, got %s", activity.Kind)
	}
}

func TestParseInboxActivityCreateNote(t *testing.T) {
	body := []byte(`{
		"type": "Create",
		"actor": "https://social.example/users/alice",
		"object": {
			"id": "https://social.example/notes/1",
			"type": "Note",
			"inReplyTo": "https://example.com/posts/42",
			"published": "2024-03-01T12:00:00Z",
			"attributedTo": "https://social.example/users/alice",
			"content": "<p>hello</p>",
			"to": ["https://www.w3.org/ns/activitystreams#Public"],
			"cc": ["https://social.example/users/alice/followers"]
		}
	}`)

	activity, err := ParseInboxActivity(body)
	if err != nil {
		t.Fatalf("ParseInboxActivity failed: %v", err)
	}
	if activity.Kind != ActivityCreate {
		t.Fatalf("Expected Create, got %s", activity.Kind)
	}
	if activity.Note == nil {
		t.Fatal("Create should carry the note")
	}
	if activity.Note.InReplyTo != "https://example.com/posts/42" {
		t.Errorf("Unexpected inReplyTo: %s", activity.Note.InReplyTo)
	}
	recipients := activity.Note.Recipients()
	if len(recipients) != 2 {
		t.Errorf("Expected 2 recipients, got %d", len(recipients))
	}
}

func TestParseInboxActivityCreateNonNote(t *testing.T) {
	body := []byte(`{
		"type": "Create",
		"actor": "https://social.example/users/alice",
		"object": {"id": "https://social.example/articles/1", "type": "Article"}
	}`)

	activity, err := ParseInboxActivity(body)
	if err != nil {
		t.Fatalf("ParseInboxActivity failed: %v", err)
	}
	if activity.Kind != ActivityUnsupported {
		t.Errorf("Expected Unsupported for Create(Article), got %s", activity.Kind)
	}
}

func TestParseInboxActivityDelete(t *testing.T) {
	body := []byte(`{
		"type": "Delete",
		"actor": "https://social.example/users/alice",
		"object": {"id": "https://social.example/notes/1", "type": "Tombstone"}
	}`)

	activity, err := ParseInboxActivity(body)
	if err != nil {
		t.Fatalf("ParseInboxActivity failed: %v", err)
	}
	if activity.Kind != ActivityDelete {
		t.Errorf("Expected Delete, got %s", activity.Kind)
	}
	if activity.ObjectID != "https://social.example/notes/1" {
		t.Errorf("Unexpected object id: %s", activity.ObjectID)
	}
}

func TestParseInboxActivityUnknownType(t *testing.T) {
	activity, err := ParseInboxActivity([]byte(`{"type": "Like", "actor": "https://social.example/users/alice"}`))
	if err != nil {
		t.Fatalf("ParseInboxActivity failed: %v", err)
	}
	if activity.Kind != ActivityUnsupported {
		t.Errorf("Expected Unsupported for Like, got %s", activity.Kind)
	}
}

func TestParseInboxActivityGarbage(t *testing.T) {
	if _, err := ParseInboxActivity([]byte(`not json`)); err == nil {
		t.Error("Expected error for non-JSON body")
	}
}
