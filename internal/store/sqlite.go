package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements PostStore on a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ PostStore = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS posts (
  id                  TEXT PRIMARY KEY,
  author_id           TEXT NOT NULL,
  author_display_name TEXT NOT NULL,
  author_avatar_url   TEXT NOT NULL,
  image_url           TEXT NOT NULL,
  caption             TEXT,
  song_json           TEXT,
  created_at          INTEGER NOT NULL,
  likes_count         INTEGER NOT NULL DEFAULT 0,
  liked_by_json       TEXT NOT NULL DEFAULT '[]',
  comments_count      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_posts_author_created
ON posts(author_id, created_at DESC);

CREATE TABLE IF NOT EXISTS idempotency_keys (
  key        TEXT PRIMARY KEY,
  post_id    TEXT NOT NULL REFERENCES posts(id),
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
  user_id      TEXT PRIMARY KEY,
  display_name TEXT,
  username     TEXT,
  avatar_url   TEXT
);
`

// OpenSQLite opens (creating if needed) the database file at path and
// applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	_ = os.Chmod(path, 0600)

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreatePost(ctx context.Context, post *Post, idempotencyKey string) error {
	if err := prepare(post); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if idempotencyKey != "" {
		var id string
		var createdAt int64
		err := tx.QueryRowContext(ctx,
			`SELECT post_id, created_at FROM idempotency_keys WHERE key = ?`, idempotencyKey,
		).Scan(&id, &createdAt)
		switch {
		case err == nil:
			post.ID = id
			post.CreatedAt = time.UnixMilli(createdAt).UTC()
			log.Info().Str("postId", id).Str("idempotencyKey", idempotencyKey).Msg("Publish replayed, returning existing post")
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	post.ID = NewPostID()
	post.CreatedAt = s.now().UTC().Truncate(time.Millisecond)

	var songJSON sql.NullString
	if post.Song != nil {
		data, err := json.Marshal(post.Song)
		if err != nil {
			return fmt.Errorf("marshal song: %w", err)
		}
		songJSON = sql.NullString{String: string(data), Valid: true}
	}
	var caption sql.NullString
	if post.Caption != nil {
		caption = sql.NullString{String: *post.Caption, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (
			id, author_id, author_display_name, author_avatar_url, image_url,
			caption, song_json, created_at, likes_count, liked_by_json, comments_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, '[]', 0)`,
		post.ID, post.AuthorID, post.AuthorDisplayName, post.AuthorAvatarURL, post.ImageURL,
		caption, songJSON, post.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	if idempotencyKey != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO idempotency_keys (key, post_id, created_at) VALUES (?, ?, ?)`,
			idempotencyKey, post.ID, post.CreatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert idempotency key: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	log.Debug().Str("postId", post.ID).Msg("Post persisted to SQLite")
	return nil
}

func (s *SQLiteStore) GetPost(ctx context.Context, id string) (*Post, error) {
	var (
		p         Post
		caption   sql.NullString
		songJSON  sql.NullString
		likedBy   string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, author_id, author_display_name, author_avatar_url, image_url,
			caption, song_json, created_at, likes_count, liked_by_json, comments_count
		FROM posts WHERE id = ?`, id,
	).Scan(&p.ID, &p.AuthorID, &p.AuthorDisplayName, &p.AuthorAvatarURL, &p.ImageURL,
		&caption, &songJSON, &createdAt, &p.LikesCount, &likedBy, &p.CommentsCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}

	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	if caption.Valid {
		c := caption.String
		p.Caption = &c
	}
	if songJSON.Valid {
		var song Song
		if err := json.Unmarshal([]byte(songJSON.String), &song); err != nil {
			return nil, fmt.Errorf("decode song for post %s: %w", id, err)
		}
		p.Song = &song
	}
	if err := json.Unmarshal([]byte(likedBy), &p.LikedByUserIDs); err != nil {
		return nil, fmt.Errorf("decode likes for post %s: %w", id, err)
	}
	return &p, nil
}

func (s *SQLiteStore) GetUserProfile(ctx context.Context, userID string) (*Profile, error) {
	var displayName, username, avatar sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT display_name, username, avatar_url FROM profiles WHERE user_id = ?`, userID,
	).Scan(&displayName, &username, &avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return &Profile{
		UserID:      userID,
		DisplayName: displayName.String,
		Username:    username.String,
		AvatarURL:   avatar.String,
	}, nil
}

func (s *SQLiteStore) PutUserProfile(ctx context.Context, profile *Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, display_name, username, avatar_url)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			username = excluded.username,
			avatar_url = excluded.avatar_url`,
		profile.UserID, profile.DisplayName, profile.Username, profile.AvatarURL,
	)
	if err != nil {
		return fmt.Errorf("put profile %s: %w", profile.UserID, err)
	}
	return nil
}
