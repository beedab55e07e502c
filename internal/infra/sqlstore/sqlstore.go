// Package sqlstore implements port.DocumentStore on a SQL database.
// Postgres is reached through the pgx stdlib driver, SQLite through the
// pure Go modernc driver. Documents are JSON text in a single table.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/resilience"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("sqlstore")

// Dialect selects placeholder syntax and driver.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func (d Dialect) driver() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	scope      TEXT NOT NULL,
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (scope, collection, id)
)`

// Store is a SQL backed document store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	cb      *gobreaker.CircuitBreaker
	cfg     resilience.Config
	logger  *zap.Logger
}

// Open connects to the database. Call Migrate before first use.
func Open(dialect Dialect, dsn string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open(dialect.driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxConcurrency > 0 {
		db.SetMaxOpenConns(cfg.MaxConcurrency)
	}
	return &Store{db: db, dialect: dialect, cb: cb, cfg: cfg, logger: logger}, nil
}

// Migrate creates the documents table.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate documents: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind turns ? placeholders into $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// execute runs fn behind the circuit breaker and the retry loop.
func (s *Store) execute(ctx context.Context, op string, fn func() error) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, s.cfg, func() error {
			err := fn()
			if isNotFound(err) {
				return &resilience.Permanent{Err: err}
			}
			return err
		})
	})

	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: "sql/" + op}
	default:
		s.logger.Error("sqlstore: operation failed", zap.String("op", op), zap.Error(err))
		return &domain.ErrExternalService{Service: "sql/" + op, Err: err}
	}
}

// IsNotFound lets the circuit breaker ignore missing documents.
func IsNotFound(err error) bool { return isNotFound(err) }

func isNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}

func encode(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

func decode(raw string) (map[string]any, error) {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) get(ctx context.Context, q queryer, scope, collection, id string) (map[string]any, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		s.rebind(`SELECT data FROM documents WHERE scope = ? AND collection = ? AND id = ?`),
		scope, collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func (s *Store) upsert(ctx context.Context, q queryer, scope, collection, id string, fields map[string]any) error {
	raw, err := encode(fields)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, s.rebind(`
		INSERT INTO documents (scope, collection, id, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (scope, collection, id)
		DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`),
		scope, collection, id, raw, time.Now().UTC(),
	)
	return err
}

// inTx runs fn in a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) ListAll(ctx context.Context, scope, collection string) ([]domain.Document, error) {
	ctx, span := tracer.Start(ctx, "SQL.ListAll")
	defer span.End()
	span.SetAttributes(attribute.String("doc.scope", scope), attribute.String("doc.collection", collection))

	var docs []domain.Document
	err := s.execute(ctx, "list", func() error {
		rows, err := s.db.QueryContext(ctx,
			s.rebind(`SELECT id, data FROM documents WHERE scope = ? AND collection = ? ORDER BY id`),
			scope, collection,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		docs = docs[:0]
		for rows.Next() {
			var id, raw string
			if err := rows.Scan(&id, &raw); err != nil {
				return err
			}
			fields, err := decode(raw)
			if err != nil {
				return err
			}
			docs = append(docs, domain.Document{ID: id, Fields: fields})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, nil
}

func (s *Store) Get(ctx context.Context, scope, collection, id string) (*domain.Document, error) {
	ctx, span := tracer.Start(ctx, "SQL.Get")
	defer span.End()
	span.SetAttributes(attribute.String("doc.scope", scope), attribute.String("doc.collection", collection))

	var fields map[string]any
	err := s.execute(ctx, "get", func() error {
		var err error
		fields, err = s.get(ctx, s.db, scope, collection, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, nil
	}
	return &domain.Document{ID: id, Fields: fields}, nil
}

func (s *Store) Set(ctx context.Context, scope, collection, id string, fields map[string]any) error {
	ctx, span := tracer.Start(ctx, "SQL.Set")
	defer span.End()

	return s.execute(ctx, "set", func() error {
		return s.upsert(ctx, s.db, scope, collection, id, fields)
	})
}

func (s *Store) Update(ctx context.Context, scope, collection, id string, fields map[string]any) error {
	ctx, span := tracer.Start(ctx, "SQL.Update")
	defer span.End()

	return s.execute(ctx, "update", func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			current, err := s.get(ctx, tx, scope, collection, id)
			if err != nil {
				return err
			}
			if current == nil {
				return &domain.ErrNotFound{Resource: collection, ID: id}
			}
			for k, v := range fields {
				current[k] = v
			}
			return s.upsert(ctx, tx, scope, collection, id, current)
		})
	})
}

func (s *Store) Merge(ctx context.Context, scope, collection, id string, fields map[string]any) error {
	ctx, span := tracer.Start(ctx, "SQL.Merge")
	defer span.End()

	return s.execute(ctx, "merge", func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			current, err := s.get(ctx, tx, scope, collection, id)
			if err != nil {
				return err
			}
			if current == nil {
				current = make(map[string]any, len(fields))
			}
			for k, v := range fields {
				current[k] = v
			}
			return s.upsert(ctx, tx, scope, collection, id, current)
		})
	})
}

func (s *Store) Delete(ctx context.Context, scope, collection, id string) error {
	ctx, span := tracer.Start(ctx, "SQL.Delete")
	defer span.End()

	return s.execute(ctx, "delete", func() error {
		_, err := s.db.ExecContext(ctx,
			s.rebind(`DELETE FROM documents WHERE scope = ? AND collection = ? AND id = ?`),
			scope, collection, id,
		)
		return err
	})
}

func (s *Store) Add(ctx context.Context, scope, collection string, fields map[string]any) (string, error) {
	ctx, span := tracer.Start(ctx, "SQL.Add")
	defer span.End()

	id := uuid.NewString()
	err := s.execute(ctx, "add", func() error {
		return s.upsert(ctx, s.db, scope, collection, id, fields)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
