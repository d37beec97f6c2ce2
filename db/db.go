package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/deemkeen/fedifeed/domain"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db   *sql.DB
	path string
}

const (
	sqlCreateMetadataTable = `CREATE TABLE IF NOT EXISTS metadata(
                        key varchar(50) NOT NULL PRIMARY KEY,
                        value text
                        )`
	sqlSelectMetadata = `SELECT value FROM metadata WHERE key = ?`
	sqlInsertMetadata = `INSERT INTO metadata(key, value) VALUES (?, ?)
                        ON CONFLICT(key) DO UPDATE SET value = excluded.value`

	//Notes
	sqlCreateNotesTable = `CREATE TABLE IF NOT EXISTS notes(
                        id uuid NOT NULL PRIMARY KEY,
                        url varchar(255) UNIQUE NOT NULL,
                        name varchar(500),
                        published_time integer NOT NULL,
                        reply_to varchar(255),
                        content text NOT NULL,
                        tags text
                        )`
	sqlInsertNote         = `INSERT INTO notes(id, url, name, published_time, reply_to, content, tags) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectNoteByURL    = `SELECT id, url, name, published_time, reply_to, content, tags FROM notes WHERE url = ?`
	sqlSelectLastNoteTime = `SELECT MAX(published_time) FROM notes`
	sqlCreateNotesIndices = `CREATE INDEX IF NOT EXISTS idx_notes_published_time ON notes(published_time DESC)`

	//Messages
	sqlCreateMessagesTable = `CREATE TABLE IF NOT EXISTS messages(
                        id uuid NOT NULL PRIMARY KEY,
                        msg_type varchar(20) NOT NULL,
                        note_id uuid NOT NULL
                        )`
	sqlInsertMessage     = `INSERT INTO messages(id, msg_type, note_id) VALUES (?, ?, ?)`
	sqlSelectMessageById = `SELECT messages.id, messages.msg_type, notes.url FROM messages
    														INNER JOIN notes ON notes.id = messages.note_id
                                                            WHERE messages.id = ?`
	sqlSelectAllMessages = `SELECT messages.id, messages.msg_type, notes.url FROM messages
    														INNER JOIN notes ON notes.id = messages.note_id
                                                            ORDER BY notes.published_time DESC`
	sqlCreateMessagesIndices = `CREATE INDEX IF NOT EXISTS idx_messages_note_id ON messages(note_id)`

	//Followers; the UNIQUE constraint on link is what keeps concurrent Follow
	//activities from the same actor down to one row.
	sqlCreateFollowersTable = `CREATE TABLE IF NOT EXISTS followers(
                        id uuid NOT NULL PRIMARY KEY,
                        link varchar(255) UNIQUE NOT NULL,
                        follower_since integer NOT NULL
                        )`
	sqlUpsertFollower = `INSERT INTO followers(id, link, follower_since) VALUES (?, ?, ?)
                        ON CONFLICT(link) DO NOTHING`
	sqlDeleteFollower  = `DELETE FROM followers WHERE link = ?`
	sqlSelectFollowers = `SELECT link FROM followers ORDER BY follower_since DESC`

	//Comments
	sqlCreateCommentsTable = `CREATE TABLE IF NOT EXISTS comments(
                        id varchar(255) NOT NULL PRIMARY KEY,
                        note_url varchar(255) NOT NULL,
                        author varchar(255) NOT NULL,
                        published_time integer NOT NULL,
                        content text NOT NULL,
                        visibility varchar(20) NOT NULL,
                        tags text
                        )`
	sqlInsertComment = `INSERT INTO comments(id, note_url, author, published_time, content, visibility, tags) VALUES (?, ?, ?, ?, ?, ?, ?)
                        ON CONFLICT(id) DO NOTHING`
	sqlDeleteComment         = `DELETE FROM comments WHERE id = ?`
	sqlSelectCommentById     = `SELECT id, note_url, author, published_time, content, visibility, tags FROM comments WHERE id = ?`
	sqlCreateCommentsIndices = `CREATE INDEX IF NOT EXISTS idx_comments_note_url ON comments(note_url)`
)

// Open opens (or creates) the sqlite database at path and configures the
// connection pool.
func Open(path string) (*DB, error) {
	sqlDb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Configure connection pool for concurrent access
	sqlDb.SetMaxOpenConns(25)
	sqlDb.SetMaxIdleConns(5)
	sqlDb.SetConnMaxLifetime(time.Hour)

	var journalMode string
	err = sqlDb.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode)
	if err != nil {
		log.Printf("Warning: Failed to enable WAL mode: %v", err)
	} else {
		log.Printf("Database journal mode: %s", journalMode)
	}

	sqlDb.Exec("PRAGMA synchronous = NORMAL")
	sqlDb.Exec("PRAGMA temp_store = MEMORY")
	sqlDb.Exec("PRAGMA busy_timeout = 5000")
	sqlDb.Exec("PRAGMA foreign_keys = ON")

	return &DB{db: sqlDb, path: path}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// CreateNoteWithMessage persists a note and its wrapping message in one
// transaction, so a feed entry never ends up stored without its activity.
func (db *DB) CreateNoteWithMessage(note *domain.Note, msgType string) (error, *domain.Message) {
	if note.Id == uuid.Nil {
		note.Id = uuid.New()
	}
	messageId := uuid.New()

	tags, err := json.Marshal(note.Tags)
	if err != nil {
		return err, nil
	}

	err = db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertNote,
			note.Id.String(),
			note.URL,
			note.Name,
			note.Published.UTC().Unix(),
			note.ReplyTo,
			note.Content,
			string(tags))
		if err != nil {
			return err
		}

		_, err = tx.Exec(sqlInsertMessage, messageId.String(), msgType, note.Id.String())
		return err
	})
	if err != nil {
		return err, nil
	}

	return nil, &domain.Message{Id: messageId, MsgType: msgType, Note: note}
}

func (db *DB) ReadNoteByURL(url string) (error, *domain.Note) {
	row := db.db.QueryRow(sqlSelectNoteByURL, url)
	return scanNote(row)
}

func scanNote(row *sql.Row) (error, *domain.Note) {
	var note domain.Note
	var published int64
	var name, replyTo, tags sql.NullString

	err := row.Scan(&note.Id, &note.URL, &name, &published, &replyTo, &note.Content, &tags)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}

	note.Name = name.String
	note.ReplyTo = replyTo.String
	note.Published = time.Unix(published, 0).UTC()
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &note.Tags); err != nil {
			return err, nil
		}
	}

	return nil, &note
}

// ReadLastNoteTime returns the watermark: the latest published time across
// all stored notes, or nil when no note exists yet.
func (db *DB) ReadLastNoteTime() (error, *time.Time) {
	var published sql.NullInt64
	err := db.db.QueryRow(sqlSelectLastNoteTime).Scan(&published)
	if err != nil {
		return err, nil
	}
	if !published.Valid {
		return nil, nil
	}

	t := time.Unix(published.Int64, 0).UTC()
	return nil, &t
}

func (db *DB) ReadMessageById(id uuid.UUID) (error, *domain.Message) {
	var message domain.Message
	var noteURL string

	row := db.db.QueryRow(sqlSelectMessageById, id.String())
	err := row.Scan(&message.Id, &message.MsgType, &noteURL)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}

	err, note := db.ReadNoteByURL(noteURL)
	if err != nil {
		return err, nil
	}
	message.Note = note

	return nil, &message
}

// ReadMessages returns all messages newest-first by note published time.
func (db *DB) ReadMessages() (error, *[]domain.Message) {
	rows, err := db.db.Query(sqlSelectAllMessages)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var refs []struct {
		id      uuid.UUID
		msgType string
		noteURL string
	}

	for rows.Next() {
		var ref struct {
			id      uuid.UUID
			msgType string
			noteURL string
		}
		if err := rows.Scan(&ref.id, &ref.msgType, &ref.noteURL); err != nil {
			return err, nil
		}
		refs = append(refs, ref)
	}
	if err = rows.Err(); err != nil {
		return err, nil
	}

	var messages []domain.Message
	for _, ref := range refs {
		err, note := db.ReadNoteByURL(ref.noteURL)
		if err != nil {
			return err, &messages
		}
		messages = append(messages, domain.Message{Id: ref.id, MsgType: ref.msgType, Note: note})
	}

	return nil, &messages
}

// UpsertFollower records a follower IRI, keeping a single row per IRI no
// matter how often the Follow arrives.
func (db *DB) UpsertFollower(link string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertFollower, uuid.New().String(), link, time.Now().UTC().Unix())
		return err
	})
}

func (db *DB) DeleteFollower(link string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollower, link)
		return err
	})
}

func (db *DB) ReadFollowers() (error, *[]string) {
	rows, err := db.db.Query(sqlSelectFollowers)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var followers []string
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return err, &followers
		}
		followers = append(followers, link)
	}
	if err = rows.Err(); err != nil {
		return err, &followers
	}

	return nil, &followers
}

func (db *DB) CreateComment(comment *domain.Comment) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertComment,
			comment.Id,
			comment.NoteURL,
			comment.Author,
			comment.Published.UTC().Unix(),
			comment.Content,
			string(comment.Visibility),
			comment.Tags)
		return err
	})
}

func (db *DB) DeleteComment(id string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteComment, id)
		return err
	})
}

func (db *DB) ReadCommentById(id string) (error, *domain.Comment) {
	var comment domain.Comment
	var published int64
	var visibility string
	var tags sql.NullString

	row := db.db.QueryRow(sqlSelectCommentById, id)
	err := row.Scan(&comment.Id, &comment.NoteURL, &comment.Author, &published, &comment.Content, &visibility, &tags)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}

	comment.Published = time.Unix(published, 0).UTC()
	comment.Visibility = domain.Visibility(visibility)
	comment.Tags = tags.String

	return nil, &comment
}

func (db *DB) readMetadata(key string) (error, *string) {
	var value string
	err := db.db.QueryRow(sqlSelectMetadata, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return err, nil
	}
	return nil, &value
}

func (db *DB) writeMetadata(key string, value string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertMetadata, key, value)
		return err
	})
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			log.Printf("error in transaction: %s", err)
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}
