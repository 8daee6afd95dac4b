// Package store is the gorm adapter for the relational backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"courtside/internal/credential"
	"courtside/internal/domain"
	"courtside/internal/feed"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Publisher receives change events after a conversation row is committed.
type Publisher interface {
	Publish(ev feed.Event)
}

type Store struct {
	DB *gorm.DB

	publisher Publisher
	hasher    credential.Hasher
}

type Option func(*Store)

// WithPublisher makes inserts into messages and room_messages emit events
// in-process. Postgres deployments rely on the NOTIFY triggers instead.
func WithPublisher(p Publisher) Option { return func(s *Store) { s.publisher = p } }

func WithHasher(h credential.Hasher) Option { return func(s *Store) { s.hasher = h } }

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{DB: db, hasher: credential.NewArgon2id()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx, publisher: s.publisher, hasher: s.hasher})
	})
}

type OpenConfig struct {
	// DSN is a postgres URL, or "sqlite:<path>" / "file:..." for SQLite.
	DSN    string
	LogSQL bool
}

func Open(cfg OpenConfig) (*gorm.DB, error) {
	lvl := logger.Silent
	if cfg.LogSQL {
		lvl = logger.Info
	}

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(cfg.DSN, "sqlite:"):
		dialector = sqlite.Open(strings.TrimPrefix(cfg.DSN, "sqlite:"))
	case strings.HasPrefix(cfg.DSN, "file:"):
		dialector = sqlite.Open(cfg.DSN)
	default:
		dialector = postgres.Open(cfg.DSN)
	}

	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log.New(log.Writer(), "", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  lvl,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		}),
		TranslateError: true,
	})
}

// AutoMigrate creates the schema. On postgres it also installs the NOTIFY
// triggers the change feed listens to.
func (s *Store) AutoMigrate(ctx context.Context) error {
	db := s.DB.WithContext(ctx)
	if err := db.AutoMigrate(domain.Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	for _, stmt := range notifyDDL() {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("install notify triggers: %w", err)
		}
	}
	return nil
}

func notifyDDL() []string {
	fn := fmt.Sprintf(`CREATE OR REPLACE FUNCTION court_notify_insert() RETURNS trigger AS $$
BEGIN
  PERFORM pg_notify('%s', json_build_object(
    'table', TG_TABLE_NAME,
    'op', TG_OP,
    'conversationId', to_jsonb(NEW) ->> TG_ARGV[0],
    'rowId', NEW.id
  )::text);
  RETURN NEW;
END;
$$ LANGUAGE plpgsql`, feed.Channel)

	trigger := func(table, column string) []string {
		name := table + "_notify_insert"
		return []string{
			fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, name, table),
			fmt.Sprintf(`CREATE TRIGGER %s AFTER INSERT ON %s FOR EACH ROW EXECUTE FUNCTION court_notify_insert('%s')`, name, table, column),
		}
	}

	out := []string{fn}
	out = append(out, trigger(feed.TableMessages, "chat_id")...)
	out = append(out, trigger(feed.TableRoomMessages, "room_id")...)
	return out
}

// translate maps driver errors onto the domain taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", domain.ErrAlreadyExists, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, pgErr.ConstraintName)
	}
	return err
}
