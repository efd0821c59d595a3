// Package postgres provides a PostgreSQL storage backend.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leeaandrob/xrpdigest/internal/models"
	"github.com/leeaandrob/xrpdigest/internal/storage"
	"github.com/rs/zerolog/log"
)

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS weekly_digests (
	id         BIGSERIAL PRIMARY KEY,
	slug       TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL,
	week_range TEXT NOT NULL,
	content    JSONB NOT NULL,
	html       TEXT NOT NULL,
	start_date DATE NOT NULL,
	end_date   DATE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS news_articles (
	id           BIGSERIAL PRIMARY KEY,
	title        TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL DEFAULT '',
	summary      TEXT NOT NULL DEFAULT '',
	score        DOUBLE PRECISION NOT NULL DEFAULT 0,
	published_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS news_articles_published_at_idx ON news_articles (published_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS news_articles_url_idx ON news_articles (url) WHERE url <> '';

CREATE TABLE IF NOT EXISTS social_posts (
	id         BIGSERIAL PRIMARY KEY,
	author     TEXT NOT NULL DEFAULT '',
	handle     TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	likes      INTEGER NOT NULL DEFAULT 0,
	reposts    INTEGER NOT NULL DEFAULT 0,
	score      DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS social_posts_created_at_idx ON social_posts (created_at DESC);
`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store persists digests in PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewStore connects to the database and verifies the connection.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().Msg("Connected to PostgreSQL")
	return &Store{db: pool}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close(context.Context) error {
	s.db.Close()
	return nil
}

// DigestExists reports whether a digest with the slug is stored.
func (s *Store) DigestExists(ctx context.Context, slug string) (bool, error) {
	query, args, err := existsQuery(slug)
	if err != nil {
		return false, err
	}

	var exists bool
	if err := s.db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check digest: %w", err)
	}
	return exists, nil
}

// InsertDigest writes a new digest in a single statement. A slug collision
// is reported as storage.ErrDuplicateSlug.
func (s *Store) InsertDigest(ctx context.Context, digest *models.Digest) error {
	if digest.CreatedAt.IsZero() {
		digest.CreatedAt = time.Now().UTC()
	}

	query, args, err := insertDigestQuery(digest)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, query, args...)
	return classifyInsert(err, digest.Slug)
}

// GetDigest returns a digest by its slug.
func (s *Store) GetDigest(ctx context.Context, slug string) (*models.Digest, error) {
	query, args, err := psql.Select("content", "html", "created_at").
		From("weekly_digests").
		Where(sq.Eq{"slug": slug}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	d, err := scanDigest(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return d, err
}

// ListDigests returns the most recent digests without their markup.
func (s *Store) ListDigests(ctx context.Context, limit int) ([]models.Digest, error) {
	query, args, err := psql.Select("content", "''", "created_at").
		From("weekly_digests").
		OrderBy("start_date DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query digests: %w", err)
	}
	defer rows.Close()

	var digests []models.Digest
	for rows.Next() {
		d, err := scanDigest(rows)
		if err != nil {
			return nil, err
		}
		digests = append(digests, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return digests, nil
}

// RecentNews returns the top scored articles published since the given time.
func (s *Store) RecentNews(ctx context.Context, since time.Time, limit int) ([]models.NewsArticle, error) {
	query, args, err := psql.Select("title", "source", "url", "summary", "score", "published_at").
		From("news_articles").
		Where(sq.GtOrEq{"published_at": since}).
		OrderBy("score DESC", "published_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query news: %w", err)
	}
	defer rows.Close()

	var articles []models.NewsArticle
	for rows.Next() {
		var a models.NewsArticle
		if err := rows.Scan(&a.Title, &a.Source, &a.URL, &a.Summary, &a.Score, &a.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan news: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// SaveNews inserts articles whose URL is not stored yet and returns how many
// were added.
func (s *Store) SaveNews(ctx context.Context, articles []models.NewsArticle) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	query, args, err := insertNewsQuery(articles)
	if err != nil {
		return 0, err
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert news: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// RecentSocialPosts returns the top scored posts created since the given time.
func (s *Store) RecentSocialPosts(ctx context.Context, since time.Time, limit int) ([]models.SocialPost, error) {
	query, args, err := psql.Select("author", "handle", "content", "likes", "reposts", "score", "created_at").
		From("social_posts").
		Where(sq.GtOrEq{"created_at": since}).
		OrderBy("score DESC", "created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query social: %w", err)
	}
	defer rows.Close()

	var posts []models.SocialPost
	for rows.Next() {
		var p models.SocialPost
		if err := rows.Scan(&p.Author, &p.Handle, &p.Content, &p.Likes, &p.Reposts, &p.Score, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan social: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// GetStats returns general statistics.
func (s *Store) GetStats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{}
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM weekly_digests),
			(SELECT COALESCE((SELECT slug FROM weekly_digests ORDER BY start_date DESC LIMIT 1), '')),
			(SELECT COUNT(*) FROM news_articles),
			(SELECT COUNT(*) FROM social_posts)
	`).Scan(&stats.TotalDigests, &stats.LatestSlug, &stats.NewsArticles, &stats.SocialPosts)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

func insertNewsQuery(articles []models.NewsArticle) (string, []any, error) {
	b := psql.Insert("news_articles").
		Columns("title", "source", "url", "summary", "score", "published_at")
	for _, a := range articles {
		b = b.Values(a.Title, a.Source, a.URL, a.Summary, a.Score, a.PublishedAt)
	}

	query, args, err := b.Suffix("ON CONFLICT (url) WHERE url <> '' DO NOTHING").ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build query: %w", err)
	}
	return query, args, nil
}

func existsQuery(slug string) (string, []any, error) {
	query, args, err := psql.Select("1").
		Prefix("SELECT EXISTS(").
		From("weekly_digests").
		Where(sq.Eq{"slug": slug}).
		Suffix(")").
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build query: %w", err)
	}
	return query, args, nil
}

// insertDigestQuery stores the markup only in the html column; content holds
// the structured fields.
func insertDigestQuery(d *models.Digest) (string, []any, error) {
	structured := *d
	structured.HTML = ""
	content, err := json.Marshal(&structured)
	if err != nil {
		return "", nil, fmt.Errorf("marshal digest: %w", err)
	}

	query, args, err := psql.Insert("weekly_digests").
		Columns("slug", "title", "week_range", "content", "html", "start_date", "end_date", "created_at").
		Values(d.Slug, d.Title, d.WeekRange, content, d.HTML, d.Start, d.End, d.CreatedAt).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert: %w", err)
	}
	return query, args, nil
}

func classifyInsert(err error, slug string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateSlug, slug)
	}
	return fmt.Errorf("insert digest: %w", err)
}

func scanDigest(row pgx.Row) (*models.Digest, error) {
	var (
		content   []byte
		html      string
		createdAt time.Time
	)
	if err := row.Scan(&content, &html, &createdAt); err != nil {
		return nil, err
	}

	var d models.Digest
	if err := json.Unmarshal(content, &d); err != nil {
		return nil, fmt.Errorf("decode digest: %w", err)
	}
	if html != "" {
		d.HTML = html
	}
	d.CreatedAt = createdAt
	return &d, nil
}
