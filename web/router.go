package web

import (
	"net/http"
	"strings"

	"github.com/deemkeen/fedifeed/activitypub"
	"github.com/deemkeen/fedifeed/db"
	"github.com/deemkeen/fedifeed/domain"
	"github.com/deemkeen/fedifeed/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Server wires the HTTP surface: webfinger, actor document, collections,
// messages and the inbox.
type Server struct {
	conf      *util.AppConfig
	self      *domain.LocalActor
	store     *db.DB
	state     *activitypub.FollowingState
	processor *activitypub.Processor
}

func NewServer(conf *util.AppConfig, self *domain.LocalActor, store *db.DB, state *activitypub.FollowingState) *Server {
	return &Server{
		conf:      conf,
		self:      self,
		store:     store,
		state:     state,
		processor: activitypub.NewProcessor(conf, self, store, state),
	}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	g.Use(s.bootstrapAndNoteMiddleware())

	g.GET("/.well-known/webfinger", s.handleWebfinger)
	g.GET("/actors/:username", s.handleActor)
	g.GET("/actors/:username/followers", s.handleFollowers)
	g.GET("/actors/:username/following", s.handleFollowing)
	g.GET("/actors/:username/outbox", s.handleOutbox)
	g.GET("/messages/:id", s.handleMessage)

	// Stricter rate limit for the inbox: 5 req/sec per IP, 1MB body cap
	apLimiter := NewRateLimiter(rate.Limit(5), 10)
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	g.POST("/actors/:username/inbox", RateLimitMiddleware(apLimiter), maxBodySize, s.handleInbox)

	return g
}

// bootstrapAndNoteMiddleware fires the one-shot following bootstrap on the
// first request and short-circuits any request whose URL matches a stored
// note's source URL, answering with the note's ActivityPub representation.
func (s *Server) bootstrapAndNoteMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.state.BootstrapOnce(s.self)

		requestURL := "https://" + c.Request.Host + c.Request.URL.RequestURI()
		requestURL = strings.TrimSuffix(requestURL, "?")

		if err, note := s.store.ReadNoteByURL(requestURL); err == nil && note != nil {
			s.respondActivityJSON(c, http.StatusOK, note.Doc(s.self, s.conf.Message.Groups))
			c.Abort()
			return
		}

		c.Next()
	}
}

func (s *Server) knownUsername(c *gin.Context) bool {
	if c.Param("username") != s.self.Username {
		c.Status(http.StatusNotFound)
		return false
	}
	return true
}
