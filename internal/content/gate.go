package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/leeaandrob/xrpdigest/internal/models"
	"github.com/leeaandrob/xrpdigest/internal/storage"
	"github.com/rs/zerolog"
)

// DigestStore is the persistence the gate writes through. Implementations
// must enforce slug uniqueness and report violations as
// storage.ErrDuplicateSlug.
type DigestStore interface {
	DigestExists(ctx context.Context, slug string) (bool, error)
	InsertDigest(ctx context.Context, digest *models.Digest) error
}

// Gate writes at most one digest per period. The existence check only saves
// work; the store's unique slug constraint is the real guard when two runs
// race past it.
type Gate struct {
	store DigestStore
}

// NewGate creates a gate over store.
func NewGate(store DigestStore) *Gate {
	return &Gate{store: store}
}

// Check returns a *ConflictError if slug is already stored.
func (g *Gate) Check(ctx context.Context, slug string) error {
	exists, err := g.store.DigestExists(ctx, slug)
	if err != nil {
		return fmt.Errorf("%w: check %s: %w", ErrPersistence, slug, err)
	}
	if exists {
		return &ConflictError{Slug: slug}
	}
	return nil
}

// Commit inserts the digest unless its period is already stored.
func (g *Gate) Commit(ctx context.Context, digest *models.Digest) error {
	logger := zerolog.Ctx(ctx)

	if err := g.Check(ctx, digest.Slug); err != nil {
		return err
	}

	if err := g.store.InsertDigest(ctx, digest); err != nil {
		if errors.Is(err, storage.ErrDuplicateSlug) {
			logger.Info().Msg("Lost insert race for period, treating as conflict")
			return &ConflictError{Slug: digest.Slug}
		}
		return fmt.Errorf("%w: insert %s: %w", ErrPersistence, digest.Slug, err)
	}

	logger.Info().Str("title", digest.Title).Msg("Digest persisted")
	return nil
}
