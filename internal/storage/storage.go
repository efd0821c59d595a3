package storage

import (
	"context"
	"errors"
	"time"

	"github.com/leeaandrob/xrpdigest/internal/models"
)

var (
	// ErrDuplicateSlug is returned when a digest for the slug already exists.
	ErrDuplicateSlug = errors.New("digest slug already exists")
	// ErrNotFound is returned when no digest matches.
	ErrNotFound = errors.New("digest not found")
)

// Repository is implemented by every storage backend.
type Repository interface {
	DigestExists(ctx context.Context, slug string) (bool, error)
	InsertDigest(ctx context.Context, digest *models.Digest) error
	GetDigest(ctx context.Context, slug string) (*models.Digest, error)
	ListDigests(ctx context.Context, limit int) ([]models.Digest, error)

	RecentNews(ctx context.Context, since time.Time, limit int) ([]models.NewsArticle, error)
	RecentSocialPosts(ctx context.Context, since time.Time, limit int) ([]models.SocialPost, error)
	SaveNews(ctx context.Context, articles []models.NewsArticle) (int, error)

	GetStats(ctx context.Context) (*Stats, error)
	Close(ctx context.Context) error
}

// Stats holds general statistics.
type Stats struct {
	TotalDigests int64  `json:"total_digests"`
	LatestSlug   string `json:"latest_slug,omitempty"`
	NewsArticles int64  `json:"news_articles"`
	SocialPosts  int64  `json:"social_posts"`
}
