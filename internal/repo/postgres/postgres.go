package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/fleethealth/internal/domain"
	"github.com/hamed0406/fleethealth/internal/repo"
)

// Schema is the table the source reads. Applied by EnsureSchema, which
// preflight runs with -init-schema.
const Schema = `
CREATE TABLE IF NOT EXISTS fleet_targets (
  class      TEXT    NOT NULL CHECK (class IN ('node','proxy')),
  address    TEXT    NOT NULL,
  position   INTEGER NOT NULL DEFAULT 0,
  enabled    BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (class, address)
);
`

// Store is a pgx-backed inventory of fleet targets.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates fleet_targets if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// List returns the enabled targets of class in position order.
func (s *Store) List(ctx context.Context, class domain.TargetClass) (domain.TargetList, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address
		   FROM fleet_targets
		  WHERE class = $1 AND enabled
		  ORDER BY position, address`, string(class))
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	out := domain.TargetList{}
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, domain.Target{Class: class, Address: addr})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	s.log.Debug("pg_targets_listed", zap.String("class", string(class)), zap.Int("count", len(out)))
	return out, nil
}

// Source binds the store to one class.
func (s *Store) Source(class domain.TargetClass) repo.TargetSource {
	return repo.SourceFunc(func(ctx context.Context) (domain.TargetList, error) {
		return s.List(ctx, class)
	})
}
