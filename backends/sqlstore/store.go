package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/zowobo/relay"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)

	relay.RegisterStore("sqlite", newSQLiteStore)
	relay.RegisterStore("postgres", newPostgresStore)
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS relay_thread (
	contact_id  VARCHAR(64) PRIMARY KEY,
	thread_id   VARCHAR(64) NOT NULL,
	created_on  TIMESTAMP NOT NULL
)`

const insertThreadSQL = `
INSERT INTO relay_thread(contact_id, thread_id, created_on)
                  VALUES(:contact_id, :thread_id, :created_on)
ON CONFLICT (contact_id) DO NOTHING`

const selectThreadSQL = `SELECT thread_id FROM relay_thread WHERE contact_id = ?`

type dbThread struct {
	ContactID relay.ContactID `db:"contact_id"`
	ThreadID  relay.ThreadRef `db:"thread_id"`
	CreatedOn time.Time       `db:"created_on"`
}

// Store is a thread store backed by a SQL database
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new store on the given database, creating our table if needed
func NewStore(ctx context.Context, db *sqlx.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, errors.Wrap(err, "error creating thread table")
	}
	return &Store{db: db}, nil
}

func newSQLiteStore(config *relay.Config) (relay.ThreadStore, error) {
	if dir := filepath.Dir(config.DB); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "error creating database directory")
		}
	}

	db, err := sqlx.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", config.DB))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite DB at '%s': %w", config.DB, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "error enabling WAL mode")
	}

	return open(db, "sqlite", config.DB)
}

func newPostgresStore(config *relay.Config) (relay.ThreadStore, error) {
	dbURL, err := url.Parse(config.DB)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DB URL '%s': %w", config.DB, err)
	}
	if dbURL.Scheme != "postgres" {
		return nil, fmt.Errorf("invalid DB URL: '%s', only postgres is supported", config.DB)
	}

	db, err := sqlx.Open("postgres", config.DB)
	if err != nil {
		return nil, fmt.Errorf("unable to open DB with config: '%s': %w", config.DB, err)
	}
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)

	return open(db, "postgres", dbURL.Redacted())
}

func open(db *sqlx.DB, driver, where string) (relay.ThreadStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "%s DB not reachable", driver)
	}

	s, err := NewStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("thread store ready", "comp", "store", "driver", driver, "db", where)
	return s, nil
}

// Get returns the thread stored for the given contact
func (s *Store) Get(ctx context.Context, contact relay.ContactID) (relay.ThreadRef, bool, error) {
	var thread relay.ThreadRef

	err := s.db.GetContext(ctx, &thread, s.db.Rebind(selectThreadSQL), contact)
	if err == sql.ErrNoRows {
		return relay.NilThreadRef, false, nil
	}
	if err != nil {
		return relay.NilThreadRef, false, errors.Wrapf(err, "error looking up thread for contact %s", contact)
	}
	return thread, true, nil
}

// PutIfAbsent stores the given thread unless the contact already has one, and returns whichever is stored
func (s *Store) PutIfAbsent(ctx context.Context, contact relay.ContactID, thread relay.ThreadRef) (relay.ThreadRef, error) {
	row := &dbThread{ContactID: contact, ThreadID: thread, CreatedOn: time.Now().UTC()}

	if _, err := s.db.NamedExecContext(ctx, insertThreadSQL, row); err != nil {
		return relay.NilThreadRef, errors.Wrapf(err, "error inserting thread for contact %s", contact)
	}

	stored, found, err := s.Get(ctx, contact)
	if err != nil {
		return relay.NilThreadRef, err
	}
	if !found {
		return relay.NilThreadRef, fmt.Errorf("thread for contact %s missing after insert", contact)
	}
	return stored, nil
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

var _ relay.ThreadStore = (*Store)(nil)
