package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"courtside/internal/config"
	"courtside/internal/domain"
	"courtside/internal/draft"
	"courtside/internal/service"
	"courtside/internal/store"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	_ = config.LoadDotenv(".env")

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "migrate":
		err = runMigrate(args)
	case "purge-drafts":
		err = runPurgeDrafts(args)
	case "room-create":
		err = runRoomCreate(args)
	case "league-create":
		err = runLeagueCreate(args)
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  migrate        Create or update the schema and change-feed triggers")
	fmt.Fprintln(os.Stderr, "  purge-drafts   Delete drafts untouched for a while")
	fmt.Fprintln(os.Stderr, "  room-create    Create a chat room (seeding)")
	fmt.Fprintln(os.Stderr, "  league-create  Create a league (seeding)")
	os.Exit(2)
}

func open(dsn string) (*gorm.DB, func(), error) {
	db, err := store.Open(store.OpenConfig{DSN: dsn})
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = sqlDB.Close() }, nil
}

func dsnFlag(fs *flag.FlagSet) *string {
	return fs.String("dsn", getenv("DATABASE_URL", ""), "database URL (postgres or sqlite:<path>)")
}

func parse(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stderr)
			fs.PrintDefaults()
		}
		return err
	}
	return nil
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dsn := dsnFlag(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if *dsn == "" {
		return errors.New("missing -dsn")
	}
	db, closeDB, err := open(*dsn)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := context.Background()
	if err := store.New(db).AutoMigrate(ctx); err != nil {
		return err
	}
	if err := draft.NewGormStore(db).Migrate(ctx); err != nil {
		return err
	}
	return printJSON(map[string]string{"status": "migrated"})
}

func runPurgeDrafts(args []string) error {
	fs := flag.NewFlagSet("purge-drafts", flag.ContinueOnError)
	dsn := dsnFlag(fs)
	olderThan := fs.Duration("older-than", 30*24*time.Hour, "delete drafts not saved within this window")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *dsn == "" {
		return errors.New("missing -dsn")
	}
	if *olderThan <= 0 {
		return errors.New("-older-than must be positive")
	}
	db, closeDB, err := open(*dsn)
	if err != nil {
		return err
	}
	defer closeDB()

	cutoff := time.Now().Add(-*olderThan)
	n, err := draft.NewGormStore(db).PurgeOlderThan(context.Background(), cutoff)
	if err != nil {
		return err
	}
	return printJSON(struct {
		Cutoff  time.Time `json:"cutoff"`
		Deleted int64     `json:"deleted"`
	}{cutoff.UTC(), n})
}

func runRoomCreate(args []string) error {
	fs := flag.NewFlagSet("room-create", flag.ContinueOnError)
	dsn := dsnFlag(fs)
	creator := fs.String("creator", "", "creator user UUID")
	title := fs.String("title", "", "room title")
	topic := fs.String("topic", "", "room topic")
	private := fs.Bool("private", false, "require a password to join")
	password := fs.String("password", getenv("COURTCTL_ROOM_PASSWORD", ""), "room password (private rooms)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *dsn == "" {
		return errors.New("missing -dsn")
	}
	creatorID, err := uuid.Parse(*creator)
	if err != nil {
		return fmt.Errorf("invalid -creator: %w", err)
	}
	db, closeDB, err := open(*dsn)
	if err != nil {
		return err
	}
	defer closeDB()

	svcs := service.New(service.Deps{Store: store.New(db)})
	room, err := svcs.Rooms.Create(context.Background(), domain.Identity{ID: creatorID}, domain.RoomInput{
		Title:     *title,
		Topic:     *topic,
		IsPrivate: *private,
		Password:  *password,
	})
	if err != nil {
		return err
	}
	return printJSON(room)
}

func runLeagueCreate(args []string) error {
	fs := flag.NewFlagSet("league-create", flag.ContinueOnError)
	dsn := dsnFlag(fs)
	name := fs.String("name", "", "league name")
	description := fs.String("description", "", "optional description")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *dsn == "" {
		return errors.New("missing -dsn")
	}
	db, closeDB, err := open(*dsn)
	if err != nil {
		return err
	}
	defer closeDB()

	svcs := service.New(service.Deps{Store: store.New(db)})
	league, err := svcs.Leagues.Create(context.Background(), *name, *description)
	if err != nil {
		return err
	}
	return printJSON(league)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
