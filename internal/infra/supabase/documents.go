package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ============================================================
// DocumentStore implementation over the `documents` table:
//   scope text, collection text, id text, data jsonb,
//   primary key (scope, collection, id)
// ============================================================

const documentsTable = "documents"

type documentRow struct {
	Scope      string         `json:"scope"`
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Data       map[string]any `json:"data"`
}

func documentFilter(scope, collection string) string {
	return fmt.Sprintf("scope=eq.%s&collection=eq.%s", url.QueryEscape(scope), url.QueryEscape(collection))
}

func documentPath(scope, collection, id string) string {
	return fmt.Sprintf("%s?%s&id=eq.%s", documentsTable, documentFilter(scope, collection), url.QueryEscape(id))
}

func startDocSpan(ctx context.Context, name, scope, collection string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "Supabase."+name)
	span.SetAttributes(
		attribute.String("doc.scope", scope),
		attribute.String("doc.collection", collection),
	)
	return ctx, span
}

func decodeRows(body []byte) ([]documentRow, error) {
	if body == nil {
		return nil, nil
	}
	var rows []documentRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return rows, nil
}

func (c *Client) ListAll(ctx context.Context, scope, collection string) ([]domain.Document, error) {
	ctx, span := startDocSpan(ctx, "ListAll", scope, collection)
	defer span.End()

	var docs []domain.Document
	err := c.execute(ctx, "supabase/documents", func() error {
		path := fmt.Sprintf("%s?%s&select=id,data&order=id.asc", documentsTable, documentFilter(scope, collection))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows, err := decodeRows(body)
		if err != nil {
			return err
		}
		docs = make([]domain.Document, 0, len(rows))
		for _, r := range rows {
			docs = append(docs, domain.Document{ID: r.ID, Fields: orEmpty(r.Data)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *Client) Get(ctx context.Context, scope, collection, id string) (*domain.Document, error) {
	ctx, span := startDocSpan(ctx, "Get", scope, collection)
	defer span.End()

	var doc *domain.Document
	err := c.execute(ctx, "supabase/documents", func() error {
		var err error
		doc, err = c.get(ctx, scope, collection, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) get(ctx context.Context, scope, collection, id string) (*domain.Document, error) {
	body, err := c.doRequest(ctx, http.MethodGet, documentPath(scope, collection, id)+"&select=id,data&limit=1")
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &domain.Document{ID: rows[0].ID, Fields: orEmpty(rows[0].Data)}, nil
}

func (c *Client) Set(ctx context.Context, scope, collection, id string, fields map[string]any) error {
	ctx, span := startDocSpan(ctx, "Set", scope, collection)
	defer span.End()

	return c.execute(ctx, "supabase/documents", func() error {
		return c.upsert(ctx, documentRow{Scope: scope, Collection: collection, ID: id, Data: orEmpty(fields)})
	})
}

// Update patches the jsonb document. PostgREST cannot merge jsonb
// server-side, so the row is read, merged and written back; concurrent
// writers are last-write-wins.
func (c *Client) Update(ctx context.Context, scope, collection, id string, fields map[string]any) error {
	ctx, span := startDocSpan(ctx, "Update", scope, collection)
	defer span.End()

	return c.execute(ctx, "supabase/documents", func() error {
		doc, err := c.get(ctx, scope, collection, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return &domain.ErrNotFound{Resource: collection, ID: id}
		}
		for k, v := range fields {
			doc.Fields[k] = v
		}
		body, err := c.doPatch(ctx, documentPath(scope, collection, id), map[string]any{"data": doc.Fields})
		if err != nil {
			return err
		}
		if rows, _ := decodeRows(body); len(rows) == 0 {
			return &domain.ErrNotFound{Resource: collection, ID: id}
		}
		return nil
	})
}

func (c *Client) Merge(ctx context.Context, scope, collection, id string, fields map[string]any) error {
	ctx, span := startDocSpan(ctx, "Merge", scope, collection)
	defer span.End()

	return c.execute(ctx, "supabase/documents", func() error {
		doc, err := c.get(ctx, scope, collection, id)
		if err != nil {
			return err
		}
		merged := make(map[string]any, len(fields))
		if doc != nil {
			merged = doc.Fields
		}
		for k, v := range fields {
			merged[k] = v
		}
		return c.upsert(ctx, documentRow{Scope: scope, Collection: collection, ID: id, Data: merged})
	})
}

func (c *Client) Delete(ctx context.Context, scope, collection, id string) error {
	ctx, span := startDocSpan(ctx, "Delete", scope, collection)
	defer span.End()

	return c.execute(ctx, "supabase/documents", func() error {
		return c.doDelete(ctx, documentPath(scope, collection, id))
	})
}

func (c *Client) Add(ctx context.Context, scope, collection string, fields map[string]any) (string, error) {
	ctx, span := startDocSpan(ctx, "Add", scope, collection)
	defer span.End()

	id := uuid.NewString()
	err := c.execute(ctx, "supabase/documents", func() error {
		// A retried insert must land on the same row.
		return c.upsert(ctx, documentRow{Scope: scope, Collection: collection, ID: id, Data: orEmpty(fields)})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *Client) upsert(ctx context.Context, row documentRow) error {
	_, err := c.doPost(ctx, documentsTable+"?on_conflict=scope,collection,id", row, "resolution=merge-duplicates,return=minimal")
	return err
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
