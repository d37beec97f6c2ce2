package activitypub

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deemkeen/fedifeed/db"
	"github.com/deemkeen/fedifeed/domain"
	"github.com/deemkeen/fedifeed/util"
)

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("Invalid test time %q: %v", s, err)
	}
	return parsed
}

type processorFixture struct {
	processor *Processor
	store     *db.DB
	state     *FollowingState
	self      *domain.LocalActor
	sender    *Actor
	senderKey *util.RsaKeyPair
}

// newProcessorFixture wires a processor against a temp database and a fake
// remote instance whose actor carries a real signing key.
func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.EnsureSchema(); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	_, sender := remoteActorServer(t, "alice")
	senderKey := util.GeneratePemKeypair()
	sender.PublicKey.ID = sender.ID + "#main-key"
	sender.PublicKey.Owner = sender.ID
	sender.PublicKey.PublicKeyPem = senderKey.Public

	conf := &util.AppConfig{}
	conf.Conf.Domain = "example.com"
	conf.Actor.Username = "blog"
	conf.Message.AcceptResponses = true

	self := testLocalActor(t)
	state := NewFollowingState()

	return &processorFixture{
		processor: NewProcessor(conf, self, store, state),
		store:     store,
		state:     state,
		self:      self,
		sender:    sender,
		senderKey: senderKey,
	}
}

// signedRequest builds the inbox POST signed with the sender's key, the way
// the remote instance would.
func (f *processorFixture) signedRequest(t *testing.T) *http.Request {
	t.Helper()

	req, err := http.NewRequest("POST", "https://example.com"+f.self.InboxPath(), nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Digest", "SHA-256=already-checked-upstream")

	if err := SignRequest(req, f.senderKey.Private, f.sender.PublicKey.ID); err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}
	return req
}

func (f *processorFixture) parseActivity(t *testing.T, body string) *domain.InboxActivity {
	t.Helper()
	activity, err := domain.ParseInboxActivity([]byte(body))
	if err != nil {
		t.Fatalf("ParseInboxActivity failed: %v", err)
	}
	return activity
}

func (f *processorFixture) followerCount(t *testing.T) int {
	t.Helper()
	err, followers := f.store.ReadFollowers()
	if err != nil {
		t.Fatalf("ReadFollowers failed: %v", err)
	}
	return len(*followers)
}

func TestProcessFollow(t *testing.T) {
	f := newProcessorFixture(t)

	follow := fmt.Sprintf(`{"type": "Follow", "actor": %q, "object": "https://example.com/actors/blog"}`, f.sender.ID)

	response, err := f.processor.Process(f.signedRequest(t), f.parseActivity(t, follow))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if f.followerCount(t) != 1 {
		t.Errorf("Expected 1 follower, got %d", f.followerCount(t))
	}

	if response == nil {
		t.Fatal("Follow should produce an Accept response")
	}
	if response.Inbox != f.sender.Inbox {
		t.Errorf("Accept should go to the sender inbox, got %s", response.Inbox)
	}
	if response.Activity["type"] != "Accept" {
		t.Errorf("Expected Accept activity, got %v", response.Activity["type"])
	}

	// The same Follow arriving again keeps a single row
	if _, err := f.processor.Process(f.signedRequest(t), f.parseActivity(t, follow)); err != nil {
		t.Fatalf("Replayed Process failed: %v", err)
	}
	if f.followerCount(t) != 1 {
		t.Errorf("Expected 1 follower after replay, got %d", f.followerCount(t))
	}
}

func TestProcessUndoRemovesFollower(t *testing.T) {
	f := newProcessorFixture(t)

	f.store.UpsertFollower(f.sender.ID)

	undo := fmt.Sprintf(`{"type": "Undo", "actor": %q, "object": {"type": "Follow", "object": "https://example.com/actors/blog"}}`, f.sender.ID)
	if _, err := f.processor.Process(f.signedRequest(t), f.parseActivity(t, undo)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if f.followerCount(t) != 0 {
		t.Errorf("Expected 0 followers after Undo, got %d", f.followerCount(t))
	}
}

func TestProcessAcceptConfirmsFollow(t *testing.T) {
	f := newProcessorFixture(t)

	accept := fmt.Sprintf(`{"type": "Accept", "actor": %q, "object": {"id": "https://example.com/follow-1", "type": "Follow"}}`, f.sender.ID)
	if _, err := f.processor.Process(f.signedRequest(t), f.parseActivity(t, accept)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	confirmed := f.state.Confirmed()
	if len(confirmed) != 1 || confirmed[0] != f.sender.ID {
		t.Errorf("Expected %s confirmed, got %v", f.sender.ID, confirmed)
	}
}

func TestProcessRejectsBadSignature(t *testing.T) {
	f := newProcessorFixture(t)

	req := f.signedRequest(t)
	req.Header.Set("Date", "Tue, 02 Jan 2024 12:00:00 GMT")

	follow := fmt.Sprintf(`{"type": "Follow", "actor": %q, "object": "https://example.com/actors/blog"}`, f.sender.ID)
	_, err := f.processor.Process(req, f.parseActivity(t, follow))
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
	if f.followerCount(t) != 0 {
		t.Error("Unauthorized Follow must not be stored")
	}
}

func TestProcessDropsUnresolvableActor(t *testing.T) {
	f := newProcessorFixture(t)

	follow := `{"type": "Follow", "actor": "http://127.0.0.1:1/users/ghost", "object": "https://example.com/actors/blog"}`
	response, err := f.processor.Process(f.signedRequest(t), f.parseActivity(t, follow))
	if err != nil {
		t.Fatalf("Unresolvable actor should be dropped silently, got %v", err)
	}
	if response != nil {
		t.Error("Dropped activity should produce no response")
	}
}

func TestProcessSelfTombstoneRemovesFollower(t *testing.T) {
	f := newProcessorFixture(t)

	gone := "http://127.0.0.1:1/users/gone"
	f.store.UpsertFollower(gone)

	tombstone := fmt.Sprintf(`{"type": "Delete", "actor": %q, "object": %q}`, gone, gone)
	if _, err := f.processor.Process(f.signedRequest(t), f.parseActivity(t, tombstone)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if f.followerCount(t) != 0 {
		t.Errorf("Expected follower removed by self-tombstone, got %d", f.followerCount(t))
	}
}

func TestProcessCreateSavesSanitizedComment(t *testing.T) {
	f := newProcessorFixture(t)

	_, message := f.store.CreateNoteWithMessage(&domain.Note{
		URL:       "https://example.com/posts/1",
		Published: mustParseTime(t, "2024-02-01T10:00:00Z"),
		Content:   "post",
	}, "Create")
	if message == nil {
		t.Fatal("Failed to seed note")
	}

	create := fmt.Sprintf(`{
		"type": "Create",
		"actor": %q,
		"object": {
			"id": "https://social.example/notes/99",
			"type": "Note",
			"inReplyTo": "https://example.com/posts/1",
			"published": "2024-03-01T12:00:00Z",
			"attributedTo": %q,
			"content": "<p>nice <script>alert(1)</script>post</p>",
			"to": ["%s"]
		}
	}`, f.sender.ID, f.sender.ID, domain.W3CPublicStream)

	if _, err := f.processor.Process(f.signedRequest(t), f.parseActivity(t, create)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	err, comment := f.store.ReadCommentById("https://social.example/notes/99")
	if err != nil {
		t.Fatalf("Comment was not saved: %v", err)
	}
	if strings.Contains(comment.Content, "script") {
		t.Errorf("Comment content was not sanitized: %q", comment.Content)
	}
	if comment.Visibility != domain.VisibilityPublic {
		t.Errorf("Expected public visibility, got %s", comment.Visibility)
	}
	if comment.NoteURL != "https://example.com/posts/1" {
		t.Errorf("Unexpected note URL: %s", comment.NoteURL)
	}
}

func TestProcessCreateIgnoresUnknownTarget(t *testing.T) {
	f := newProcessorFixture(t)

	create := fmt.Sprintf(`{
		"type": "Create",
		"actor": %q,
		"object": {
			"id": "https://social.example/notes/100",
			"type": "Note",
			"inReplyTo": "https://example.com/posts/we-never-wrote-this",
			"attributedTo": %q,
			"content": "<p>hello</p>"
		}
	}`, f.sender.ID, f.sender.ID)

	if _, err := f.processor.Process(f.signedRequest(t), f.parseActivity(t, create)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if err, _ := f.store.ReadCommentById("https://social.example/notes/100"); err == nil {
		t.Error("Reply to an unknown note must not be stored")
	}
}

func TestProcessCreateDisabled(t *testing.T) {
	f := newProcessorFixture(t)
	f.processor.conf.Message.AcceptResponses = false

	create := fmt.Sprintf(`{
		"type": "Create",
		"actor": %q,
		"object": {"id": "https://social.example/notes/101", "type": "Note", "inReplyTo": "https://example.com/posts/1", "attributedTo": %q, "content": "x"}
	}`, f.sender.ID, f.sender.ID)

	if _, err := f.processor.Process(f.signedRequest(t), f.parseActivity(t, create)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if err, _ := f.store.ReadCommentById("https://social.example/notes/101"); err == nil {
		t.Error("Replies must be dropped when responses are disabled")
	}
}

func TestProcessDeleteRemovesComment(t *testing.T) {
	f := newProcessorFixture(t)

	f.store.CreateComment(&domain.Comment{
		Id:         "https://social.example/notes/99",
		NoteURL:    "https://example.com/posts/1",
		Author:     f.sender.ID,
		Published:  mustParseTime(t, "2024-03-01T12:00:00Z"),
		Content:    "<p>bye</p>",
		Visibility: domain.VisibilityPublic,
	})

	del := fmt.Sprintf(`{"type": "Delete", "actor": %q, "object": {"id": "https://social.example/notes/99", "type": "Tombstone"}}`, f.sender.ID)
	if _, err := f.processor.Process(f.signedRequest(t), f.parseActivity(t, del)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if err, _ := f.store.ReadCommentById("https://social.example/notes/99"); err == nil {
		t.Error("Expected comment removed by Delete")
	}
}
