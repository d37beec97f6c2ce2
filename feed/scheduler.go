package feed

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/deemkeen/fedifeed/activitypub"
	"github.com/deemkeen/fedifeed/db"
	"github.com/deemkeen/fedifeed/domain"
	"github.com/deemkeen/fedifeed/util"
	"github.com/mmcdole/gofeed"
)

// Scheduler polls the configured feed and turns new entries into federated
// notes, independent of the request path.
type Scheduler struct {
	conf   *util.AppConfig
	self   *domain.LocalActor
	store  *db.DB
	parser *gofeed.Parser
}

func NewScheduler(conf *util.AppConfig, self *domain.LocalActor, store *db.DB) *Scheduler {
	parser := gofeed.NewParser()
	parser.UserAgent = util.GetNameAndVersion()

	return &Scheduler{conf: conf, self: self, store: store, parser: parser}
}

// Run loops until the context is cancelled. A cycle that has started always
// completes; only the idle period between cycles is interruptible.
func (s *Scheduler) Run(ctx context.Context) {
	interval := time.Duration(s.conf.Website.UpdateFreq) * time.Minute

	for {
		messages := s.update(ctx)
		s.propagate(messages)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("Feed scheduler stopped")
			return
		case <-timer.C:
		}
	}
}

// update fetches the feed and persists a note and message for every entry
// published after the stored watermark, in feed order.
func (s *Scheduler) update(ctx context.Context) []domain.Message {
	log.Println("Update started")

	err, lastDt := s.store.ReadLastNoteTime()
	if err != nil {
		log.Printf("Failed to read the note watermark: %v", err)
		return nil
	}

	if lastDt != nil {
		log.Printf("Last known article on %s", lastDt.Format(time.RFC3339))
	} else {
		log.Println("No article known, fetching all the articles")
	}

	parsed, err := s.parser.ParseURLWithContext(s.conf.Website.Feed, ctx)
	if err != nil {
		log.Printf("Failed to fetch feed %s: %v", s.conf.Website.Feed, err)
		return nil
	}

	var messages []domain.Message

	for _, item := range parsed.Items {
		published := entryTime(item)
		if published == nil {
			log.Printf("Skipping %q: no usable timestamp", item.Title)
			continue
		}

		// Strictly after the watermark: entries that tie with it were
		// already published in an earlier cycle.
		if lastDt != nil && !published.After(*lastDt) {
			continue
		}

		if err, existing := s.store.ReadNoteByURL(item.Link); err == nil && existing != nil {
			continue
		}

		log.Printf("New article: %q, published on %s (%s)", item.Title, published.Format(time.RFC3339), item.Link)

		hashtags, tags := s.makeTags(item.Categories)
		text := s.linkHashtags(s.renderTemplate(item, *published, hashtags))

		note := &domain.Note{
			URL:       item.Link,
			Name:      item.Title,
			Published: *published,
			Content:   text,
			Tags:      tags,
		}

		err, message := s.store.CreateNoteWithMessage(note, "Create")
		if err != nil {
			log.Printf("Failed to save note for %s: %v", item.Link, err)
			continue
		}

		log.Printf("Note saved: %s", note.Id)
		messages = append(messages, *message)
	}

	log.Println("Update finished")

	return messages
}

// entryTime normalizes an entry's timestamp to UTC. Atom dates parse as
// ISO-8601, RSS dates as RFC-822; timestamps without a timezone are treated
// as UTC. Entries without published fall back to updated.
func entryTime(item *gofeed.Item) *time.Time {
	stamp := item.PublishedParsed
	if stamp == nil {
		stamp = item.UpdatedParsed
	}
	if stamp == nil {
		return nil
	}

	utc := stamp.UTC()
	return &utc
}

func (s *Scheduler) renderTemplate(item *gofeed.Item, published time.Time, hashtags string) string {
	author := ""
	if item.Author != nil {
		author = item.Author.Name
	}

	return strings.NewReplacer(
		"{title}", item.Title,
		"{url}", item.Link,
		"{published}", published.Format("2006-01-02 15:04"),
		"{summary}", item.Description,
		"{author}", author,
		"{tags}", hashtags,
	).Replace(s.conf.Message.Format)
}

// makeTags formats the entry's tags per the configured casing convention,
// returning both the trailing hashtag string and the tag list.
func (s *Scheduler) makeTags(categories []string) (string, []string) {
	var hashtags []string
	var tags []string

	for _, category := range categories {
		formatted := util.FormatTag(s.conf.Message.TagFormat, category)
		hashtags = append(hashtags, "#"+formatted)
		tags = append(tags, formatted)
	}

	return strings.Join(hashtags, " "), tags
}

// linkHashtags rewrites inline #tag occurrences into Markdown links pointing
// at the local tag page.
func (s *Scheduler) linkHashtags(msg string) string {
	for _, hashtag := range util.FindHashtags(msg) {
		msg = strings.ReplaceAll(msg,
			"#"+hashtag,
			fmt.Sprintf("[#%s](https://%s/tags/%s)", hashtag, s.conf.Conf.Domain, hashtag))
	}
	return msg
}

// propagate delivers every new message to every follower inbox and every
// configured group inbox. One failing destination never blocks the rest.
func (s *Scheduler) propagate(messages []domain.Message) {
	if len(messages) == 0 {
		return
	}

	inboxes := s.inboxes()

	for _, message := range messages {
		doc := message.Doc(s.self, s.conf.Message.Groups)
		for _, inbox := range inboxes {
			if err := activitypub.Deliver(s.self, inbox, doc); err != nil {
				log.Printf("Failed to deliver %s to %s: %v", doc.ID, inbox, err)
			}
		}
	}
}

func (s *Scheduler) inboxes() []string {
	var inboxes []string

	err, followers := s.store.ReadFollowers()
	if err != nil {
		log.Printf("Failed to read followers: %v", err)
	} else {
		for _, follower := range *followers {
			actor, err := activitypub.ResolveActorByIRI(follower)
			if err != nil {
				log.Printf("Could not get inbox for %s, they won't receive the message", follower)
				continue
			}
			inboxes = append(inboxes, actor.Inbox)
		}
	}

	inboxes = append(inboxes, s.conf.Message.Groups...)

	return inboxes
}
