package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/affinity/internal/config"
	"github.com/temcen/affinity/internal/ml"
	"github.com/temcen/affinity/pkg/models"
)

// DatabaseQuerier interface for database operations
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// FeatureStore owns the item catalog: fixed-dimension feature vectors
// persisted in PostgreSQL and assembled on demand into an immutable dense
// matrix snapshot for training and inference. The snapshot is cached and
// invalidated whenever new items are ingested.
type FeatureStore struct {
	db     DatabaseQuerier
	config *config.CatalogConfig
	logger *logrus.Logger

	mu       sync.RWMutex
	snapshot *FeatureSnapshot
}

// FeatureSnapshot is a point-in-time view of the catalog. The matrix row
// order matches Items; both are read-only after assembly.
type FeatureSnapshot struct {
	Matrix *mat.Dense // items x F
	Items  []models.Item

	rowByID map[uuid.UUID]int
}

// Row resolves an item ID to its matrix row index.
func (s *FeatureSnapshot) Row(id uuid.UUID) (int, bool) {
	row, ok := s.rowByID[id]
	return row, ok
}

func NewFeatureStore(db DatabaseQuerier, cfg *config.CatalogConfig, logger *logrus.Logger) *FeatureStore {
	return &FeatureStore{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

// IngestItems validates and persists a batch of items. Every feature vector
// must have the configured catalog dimension; names are NFC-normalized so
// lookups do not depend on the submitter's Unicode representation.
func (fs *FeatureStore) IngestItems(ctx context.Context, requests []models.ItemIngestionRequest) ([]models.Item, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("no items to ingest: %w", ml.ErrDegenerateInput)
	}

	for i, req := range requests {
		if len(req.Features) != fs.config.FeatureDimensions {
			return nil, fmt.Errorf("item %d has %d features, catalog dimension is %d: %w",
				i, len(req.Features), fs.config.FeatureDimensions, ml.ErrShapeMismatch)
		}
	}

	var nextPosition int
	err := fs.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM items`,
	).Scan(&nextPosition)
	if err != nil {
		return nil, fmt.Errorf("failed to determine next catalog position: %w", err)
	}

	items := make([]models.Item, 0, len(requests))
	now := time.Now()

	for i, req := range requests {
		item := models.Item{
			ID:        uuid.New(),
			Position:  nextPosition + i,
			Name:      norm.NFC.String(strings.TrimSpace(req.Name)),
			Features:  req.Features,
			CreatedAt: now,
		}

		_, err := fs.db.Exec(ctx,
			`INSERT INTO items (id, position, name, features, created_at) VALUES ($1, $2, $3, $4, $5)`,
			item.ID, item.Position, item.Name, item.Features, item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert item %q: %w", item.Name, err)
		}

		items = append(items, item)
	}

	// New rows invalidate the cached matrix.
	fs.mu.Lock()
	fs.snapshot = nil
	fs.mu.Unlock()

	fs.logger.WithFields(logrus.Fields{
		"count":          len(items),
		"first_position": nextPosition,
	}).Info("Catalog items ingested")

	return items, nil
}

// Snapshot returns the current catalog as a dense feature matrix, assembling
// and caching it on first use.
func (fs *FeatureStore) Snapshot(ctx context.Context) (*FeatureSnapshot, error) {
	fs.mu.RLock()
	cached := fs.snapshot
	fs.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	rows, err := fs.db.Query(ctx,
		`SELECT id, position, name, features, created_at FROM items ORDER BY position`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(&item.ID, &item.Position, &item.Name, &item.Features, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("catalog is empty: %w", ml.ErrDegenerateInput)
	}

	f := fs.config.FeatureDimensions
	matrix := mat.NewDense(len(items), f, nil)
	rowByID := make(map[uuid.UUID]int, len(items))
	for row, item := range items {
		if len(item.Features) != f {
			return nil, fmt.Errorf("stored item %s has %d features, catalog dimension is %d: %w",
				item.ID, len(item.Features), f, ml.ErrShapeMismatch)
		}
		matrix.SetRow(row, item.Features)
		rowByID[item.ID] = row
	}

	snapshot := &FeatureSnapshot{
		Matrix:  matrix,
		Items:   items,
		rowByID: rowByID,
	}

	fs.mu.Lock()
	fs.snapshot = snapshot
	fs.mu.Unlock()

	fs.logger.WithFields(logrus.Fields{
		"items":    len(items),
		"features": f,
	}).Debug("Catalog snapshot assembled")

	return snapshot, nil
}

// ListItems returns one page of the catalog ordered by position.
func (fs *FeatureStore) ListItems(ctx context.Context, page, pageSize int) (*models.CatalogPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = fs.config.PageSize
	}

	var total int
	if err := fs.db.QueryRow(ctx, `SELECT COUNT(*) FROM items`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count catalog items: %w", err)
	}

	rows, err := fs.db.Query(ctx,
		`SELECT id, position, name, features, created_at FROM items ORDER BY position LIMIT $1 OFFSET $2`,
		pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog items: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(&item.ID, &item.Position, &item.Name, &item.Features, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}

	return &models.CatalogPage{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}
