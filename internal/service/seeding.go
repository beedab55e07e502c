package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// seedID is the document id of the i-th template. Stable ids let a retry
// after a partial seed fill in only what is missing.
func seedID(i int) string {
	return fmt.Sprintf("seed-%02d", i+1)
}

type seedState int

const (
	seedUnseen seedState = iota
	seedListed
	seedIncomplete
)

// seedTracker remembers which (collection, tenant) pairs were listed in
// this process. Only the first list of a pair may seed, unless that seed
// failed part way.
type seedTracker struct {
	mu    sync.Mutex
	state map[string]seedState
}

func newSeedTracker() *seedTracker {
	return &seedTracker{state: make(map[string]seedState)}
}

// claim marks the pair as listed and reports whether this list must seed.
func (t *seedTracker) claim(collection, tenantID string, empty bool) bool {
	key := collection + "/" + tenantID
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state[key] {
	case seedUnseen:
		t.state[key] = seedListed
		return empty
	case seedIncomplete:
		t.state[key] = seedListed
		return true
	default:
		return false
	}
}

// failed lets the next list of the pair finish the seed.
func (t *seedTracker) failed(collection, tenantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state[collection+"/"+tenantID] = seedIncomplete
}

// listOrSeed lists a tenant collection and, when it is empty on the first
// list, writes the templates and lists again. Templates already present
// from an earlier failed attempt are not written twice.
func listOrSeed(
	ctx context.Context,
	store port.DocumentStore,
	tracker *seedTracker,
	tenantID, collection string,
	templates []map[string]any,
	metrics *observability.Metrics,
	logger *zap.Logger,
) ([]domain.Document, error) {
	docs, err := store.ListAll(ctx, tenantID, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	if len(templates) == 0 || !tracker.claim(collection, tenantID, len(docs) == 0) {
		return docs, nil
	}

	present := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		present[doc.ID] = struct{}{}
	}

	g, gCtx := errgroup.WithContext(ctx)
	written := 0
	for i, fields := range templates {
		id := seedID(i)
		if _, ok := present[id]; ok {
			continue
		}
		fields := fields
		written++
		g.Go(func() error {
			return store.Set(gCtx, tenantID, collection, id, fields)
		})
	}
	if err := g.Wait(); err != nil {
		tracker.failed(collection, tenantID)
		logger.Warn("tenant collection seeding failed, will retry on next list",
			zap.String("tenant", tenantID),
			zap.String("collection", collection),
			zap.Error(err),
		)
		return nil, fmt.Errorf("seed %s: %w", collection, err)
	}
	metrics.IncrSeedRun(collection)
	logger.Info("tenant collection seeded",
		zap.String("tenant", tenantID),
		zap.String("collection", collection),
		zap.Int("documents", written),
	)

	docs, err = store.ListAll(ctx, tenantID, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s after seeding: %w", collection, err)
	}
	return docs, nil
}
