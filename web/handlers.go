package web

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/deemkeen/fedifeed/activitypub"
	"github.com/deemkeen/fedifeed/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const mimeActivityJSON = "application/activity+json; charset=utf-8"
const mimeJRDJSON = "application/jrd+json; charset=utf-8"

func (s *Server) respondActivityJSON(c *gin.Context, status int, body interface{}) {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Printf("Failed to serialize response: %v", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, mimeActivityJSON, payload)
}

func (s *Server) handleWebfinger(c *gin.Context) {
	subject := fmt.Sprintf("acct:%s@%s", s.self.Username, s.self.Domain)

	resource := c.Query("resource")
	if resource != subject {
		c.Status(http.StatusNotFound)
		return
	}

	payload, err := json.Marshal(gin.H{
		"subject": subject,
		"links": []gin.H{
			{
				"rel":  "self",
				"type": activitypub.MimeActivityJSON,
				"href": s.self.ID(),
			},
		},
	})
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Data(http.StatusOK, mimeJRDJSON, payload)
}

func (s *Server) handleActor(c *gin.Context) {
	if !s.knownUsername(c) {
		return
	}

	s.respondActivityJSON(c, http.StatusOK, s.self.Doc())
}

func (s *Server) handleFollowers(c *gin.Context) {
	if !s.knownUsername(c) {
		return
	}

	err, followers := s.store.ReadFollowers()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	items := make([]interface{}, 0, len(*followers))
	for _, follower := range *followers {
		items = append(items, follower)
	}

	s.respondCollection(c, s.self.FollowersIRI(), items)
}

func (s *Server) handleFollowing(c *gin.Context) {
	if !s.knownUsername(c) {
		return
	}

	confirmed := s.state.Confirmed()
	items := make([]interface{}, 0, len(confirmed))
	for _, actor := range confirmed {
		items = append(items, actor)
	}

	s.respondCollection(c, s.self.FollowingIRI(), items)
}

func (s *Server) handleOutbox(c *gin.Context) {
	if !s.knownUsername(c) {
		return
	}

	err, messages := s.store.ReadMessages()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	items := make([]interface{}, 0, len(*messages))
	for _, message := range *messages {
		doc := message.Doc(s.self, s.conf.Message.Groups)
		doc.Context = nil // items inherit the collection context
		items = append(items, doc)
	}

	s.respondCollection(c, s.self.OutboxIRI(), items)
}

func (s *Server) respondCollection(c *gin.Context, endpoint string, items []interface{}) {
	page := 0
	if raw := c.Query("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		page = parsed
	}

	collection := domain.MakeOrderedCollection(endpoint, items, page, domain.CollectionPageSize)
	if collection == nil {
		c.Status(http.StatusNotFound)
		return
	}

	s.respondActivityJSON(c, http.StatusOK, collection)
}

func (s *Server) handleMessage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	err, message := s.store.ReadMessageById(id)
	if err != nil || message == nil {
		c.Status(http.StatusNotFound)
		return
	}

	s.respondActivityJSON(c, http.StatusOK, message.Doc(s.self, s.conf.Message.Groups))
}

func (s *Server) handleInbox(c *gin.Context) {
	if !s.knownUsername(c) {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		log.Printf("Inbox: Failed to read body: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	// The digest gate comes first: a body that doesn't match its declared
	// digest can't have a meaningful signature either.
	expectedDigest := c.GetHeader("Digest")
	hash := sha256.Sum256(body)
	actualDigest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
	if actualDigest != expectedDigest {
		log.Printf("Inbox: Expected digest from header: %s", expectedDigest)
		log.Printf("Inbox: Actual computed digest: %s", actualDigest)
		c.String(http.StatusUnauthorized, "Invalid digest")
		return
	}

	activity, err := domain.ParseInboxActivity(body)
	if err != nil {
		log.Printf("Inbox: Failed to parse activity: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	log.Printf("Inbox: Received %s from %s", activity.Type, activity.Actor)

	response, err := s.processor.Process(c.Request, activity)
	if err != nil {
		if errors.Is(err, activitypub.ErrUnauthorized) {
			c.Status(http.StatusUnauthorized)
			return
		}
		log.Printf("Inbox: Failed to process %s: %v", activity.Kind, err)
		c.Status(http.StatusInternalServerError)
		return
	}

	// Acknowledge before the response activity goes out; delivery success
	// is not part of this request's outcome.
	c.Status(http.StatusAccepted)

	if response != nil {
		go func() {
			if err := activitypub.Deliver(s.self, response.Inbox, response.Activity); err != nil {
				log.Printf("Inbox: Failed to deliver response to %s: %v", response.Inbox, err)
			}
		}()
	}
}
