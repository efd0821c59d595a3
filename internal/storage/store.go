// Package storage provides MongoDB storage for weekly digests and the news and
// social feeds they are built from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leeaandrob/xrpdigest/internal/models"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store provides access to all MongoDB collections.
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	digests *mongo.Collection
	news    *mongo.Collection
	social  *mongo.Collection
}

var _ Repository = (*Store)(nil)

// NewStore creates a new storage connection.
func NewStore(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(dbName)
	log.Info().Str("db", dbName).Msg("Connected to MongoDB")

	store := &Store{
		client:  client,
		db:      db,
		digests: db.Collection("digests"),
		news:    db.Collection("news_articles"),
		social:  db.Collection("social_posts"),
	}

	// The unique slug index is what enforces one digest per week.
	if err := store.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// createIndexes creates necessary indexes for efficient queries.
func (s *Store) createIndexes(ctx context.Context) error {
	digestIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "start", Value: -1}}},
	}
	if _, err := s.digests.Indexes().CreateMany(ctx, digestIndexes); err != nil {
		return fmt.Errorf("failed to create digest indexes: %w", err)
	}

	newsIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "published_at", Value: -1}, {Key: "score", Value: -1}}},
		{Keys: bson.D{{Key: "url", Value: 1}}},
	}
	if _, err := s.news.Indexes().CreateMany(ctx, newsIndexes); err != nil {
		log.Warn().Err(err).Msg("Failed to create news indexes")
	}

	socialIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "score", Value: -1}}},
	}
	if _, err := s.social.Indexes().CreateMany(ctx, socialIndexes); err != nil {
		log.Warn().Err(err).Msg("Failed to create social indexes")
	}

	return nil
}

// ============================================================================
// DIGEST OPERATIONS
// ============================================================================

// DigestExists reports whether a digest with the slug is stored.
func (s *Store) DigestExists(ctx context.Context, slug string) (bool, error) {
	n, err := s.digests.CountDocuments(ctx, bson.M{"slug": slug}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertDigest writes a new digest. It never updates an existing one.
func (s *Store) InsertDigest(ctx context.Context, digest *models.Digest) error {
	if digest.CreatedAt.IsZero() {
		digest.CreatedAt = time.Now().UTC()
	}
	_, err := s.digests.InsertOne(ctx, digest)
	return classifyInsert(err, digest.Slug)
}

// classifyInsert maps a unique index violation to ErrDuplicateSlug.
func classifyInsert(err error, slug string) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateSlug, slug)
	}
	return err
}

// GetDigest returns a digest by its slug.
func (s *Store) GetDigest(ctx context.Context, slug string) (*models.Digest, error) {
	var digest models.Digest
	err := s.digests.FindOne(ctx, bson.M{"slug": slug}).Decode(&digest)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &digest, nil
}

// ListDigests returns the most recent digests, newest period first.
func (s *Store) ListDigests(ctx context.Context, limit int) ([]models.Digest, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "start", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"html": 0})

	cursor, err := s.digests.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var digests []models.Digest
	if err := cursor.All(ctx, &digests); err != nil {
		return nil, err
	}
	return digests, nil
}

// ============================================================================
// FEED OPERATIONS
// ============================================================================

// RecentNews returns the top scored articles published since the given time.
func (s *Store) RecentNews(ctx context.Context, since time.Time, limit int) ([]models.NewsArticle, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "score", Value: -1}, {Key: "published_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.news.Find(ctx, bson.M{"published_at": bson.M{"$gte": since}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var articles []models.NewsArticle
	if err := cursor.All(ctx, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// SaveNews upserts articles by URL without touching stored ones and returns
// how many were added.
func (s *Store) SaveNews(ctx context.Context, articles []models.NewsArticle) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	opts := options.BulkWrite().SetOrdered(false)
	res, err := s.news.BulkWrite(ctx, newsUpserts(articles), opts)
	if err != nil {
		return 0, fmt.Errorf("bulk upsert news: %w", err)
	}
	return int(res.UpsertedCount), nil
}

func newsUpserts(articles []models.NewsArticle) []mongo.WriteModel {
	writes := make([]mongo.WriteModel, 0, len(articles))
	for _, a := range articles {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"url": a.URL}).
			SetUpdate(bson.M{"$setOnInsert": a}).
			SetUpsert(true))
	}
	return writes
}

// RecentSocialPosts returns the top scored posts created since the given time.
func (s *Store) RecentSocialPosts(ctx context.Context, since time.Time, limit int) ([]models.SocialPost, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "score", Value: -1}, {Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.social.Find(ctx, bson.M{"created_at": bson.M{"$gte": since}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var posts []models.SocialPost
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// ============================================================================
// STATS OPERATIONS
// ============================================================================

// GetStats returns general statistics.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	var err error
	stats.TotalDigests, err = s.digests.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	stats.NewsArticles, err = s.news.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	stats.SocialPosts, err = s.social.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	var latest struct {
		Slug string `bson:"slug"`
	}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "start", Value: -1}}).
		SetProjection(bson.M{"slug": 1})
	err = s.digests.FindOne(ctx, bson.M{}, opts).Decode(&latest)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	stats.LatestSlug = latest.Slug

	return stats, nil
}
