package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// DatabaseVersion is the schema generation this build writes and expects.
const DatabaseVersion = 2

const metadataVersionKey = "version"

// ErrIncompatibleSchema means the on-disk schema was written by a newer
// build. The process must refuse to run rather than corrupt it.
var ErrIncompatibleSchema = errors.New("database schema is newer than this version supports")

// MigrationError means an upgrade step left the schema at an unexpected
// version; the pre-migration backup has already been restored.
type MigrationError struct {
	Expected int
	Actual   int
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("database version mismatch after upgrade: expected %d, got %d; the backup has been restored", e.Expected, e.Actual)
}

// EnsureSchema brings the database to the current schema generation:
// fresh databases are initialized, older ones upgraded step by step behind a
// file backup, newer ones rejected.
func (db *DB) EnsureSchema() error {
	initialized, err := db.schemaInitialized()
	if err != nil {
		return err
	}

	if !initialized {
		log.Println("Initializing fresh database schema")
		return db.initSchema()
	}

	version, err := db.ReadSchemaVersion()
	if err != nil {
		return err
	}

	switch {
	case version > DatabaseVersion:
		return fmt.Errorf("%w: found %d, supported %d", ErrIncompatibleSchema, version, DatabaseVersion)
	case version < DatabaseVersion:
		return db.upgradeSchema(version)
	}

	return nil
}

func (db *DB) schemaInitialized() (bool, error) {
	var name string
	err := db.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'metadata'`).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (db *DB) initSchema() error {
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		for _, stmt := range []string{
			sqlCreateMetadataTable,
			sqlCreateNotesTable,
			sqlCreateNotesIndices,
			sqlCreateMessagesTable,
			sqlCreateMessagesIndices,
			sqlCreateFollowersTable,
			sqlCreateCommentsTable,
			sqlCreateCommentsIndices,
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return db.writeSchemaVersion(DatabaseVersion)
}

func (db *DB) ReadSchemaVersion() (int, error) {
	err, value := db.readMetadata(metadataVersionKey)
	if err != nil {
		return 0, err
	}
	if value == nil {
		return 0, fmt.Errorf("database has no schema version recorded")
	}

	version, err := strconv.Atoi(*value)
	if err != nil {
		return 0, fmt.Errorf("invalid schema version %q: %w", *value, err)
	}

	return version, nil
}

func (db *DB) writeSchemaVersion(version int) error {
	return db.writeMetadata(metadataVersionKey, strconv.Itoa(version))
}

// upgradeSchema runs the incremental upgrade steps in strictly increasing
// order. The database file is backed up first; a version mismatch after the
// steps restores the backup and fails.
func (db *DB) upgradeSchema(current int) error {
	log.Printf("Upgrading database schema from v%d to v%d", current, DatabaseVersion)

	backup := fmt.Sprintf("%s.%d.bak", db.path, time.Now().UTC().Unix())
	if err := copyFile(db.path, backup); err != nil {
		return fmt.Errorf("failed to back up database: %w", err)
	}
	log.Printf("Database backed up to %s", backup)

	if current == 1 {
		log.Println("Upgrading from v1 to v2...")
		err := db.wrapTransaction(func(tx *sql.Tx) error {
			_, err := tx.Exec(`ALTER TABLE notes ADD name varchar(500)`)
			return err
		})
		if err != nil {
			db.restoreBackup(backup)
			return fmt.Errorf("v1 to v2 upgrade failed: %w", err)
		}
		current++
	}

	if current != DatabaseVersion {
		db.restoreBackup(backup)
		return &MigrationError{Expected: DatabaseVersion, Actual: current}
	}

	if err := db.writeSchemaVersion(DatabaseVersion); err != nil {
		// The upgraded tables must not outlive a stale recorded version, or
		// the next start would re-run the steps against them.
		db.restoreBackup(backup)
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	log.Println("Upgrade finished! You can remove the backup safely.")
	return nil
}

func (db *DB) restoreBackup(backup string) {
	if err := copyFile(backup, db.path); err != nil {
		log.Printf("Failed to restore database backup from %s: %v", backup, err)
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
