package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/docstore"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CalendarSync keeps a tenant's calendar in the primary collection and its
// narrow projection in the mirror collection under the same ids.
//
// Writes always await the primary before touching the mirror. A failed
// mirror create or update is logged and counted; the primary stays
// authoritative. A failed delete on either side fails the whole call.
type CalendarSync struct {
	store     port.DocumentStore
	primary   string
	mirror    string
	loc       *time.Location
	templates []map[string]any
	seeds     *seedTracker
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewCalendarSync creates the engine. templates are written to the
// primary collection only, on the first empty list of a tenant.
func NewCalendarSync(
	store port.DocumentStore,
	primary, mirror string,
	loc *time.Location,
	templates []domain.EntryInput,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CalendarSync {
	if loc == nil {
		loc = time.UTC
	}
	fields := make([]map[string]any, 0, len(templates))
	for _, in := range templates {
		fields = append(fields, docstore.EntryFields(newEntry("", in)))
	}
	return &CalendarSync{
		store:     store,
		primary:   primary,
		mirror:    mirror,
		loc:       loc,
		templates: fields,
		seeds:     newSeedTracker(),
		metrics:   metrics,
		logger:    logger,
	}
}

// Location is the portal time zone entries are expressed in.
func (s *CalendarSync) Location() *time.Location {
	return s.loc
}

// ParseScheduledAt accepts a date (2006-01-02), read as local midnight in
// loc, or a full RFC 3339 instant.
func ParseScheduledAt(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if d, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &domain.ErrValidation{Field: "scheduled_at", Message: "data inválida"}
	}
	return t.In(loc), nil
}

func newEntry(tenantID string, in domain.EntryInput) domain.ScheduledEntry {
	e := domain.ScheduledEntry{
		TenantID:     tenantID,
		Title:        strings.TrimSpace(in.Title),
		ScheduledAt:  in.ScheduledAt,
		Kind:         in.Kind,
		Status:       in.Status,
		Owner:        in.Owner,
		Channel:      in.Channel,
		ReferenceURL: in.ReferenceURL,
		Body:         in.Body,
		Description:  in.Description,
	}
	if e.Kind == "" {
		e.Kind = domain.DefaultEntryKind
	}
	if e.Status == "" {
		e.Status = domain.DefaultEntryStatus
	}
	if e.Channel == "" {
		e.Channel = domain.DefaultEntryChannel
	}
	return e
}

func (s *CalendarSync) decode(tenantID string, doc domain.Document) domain.ScheduledEntry {
	e := docstore.EntryFromDocument(tenantID, doc, s.loc)
	if !e.ScheduledAt.IsZero() {
		e.ScheduledAt = e.ScheduledAt.In(s.loc)
	}
	return e
}

// List returns the tenant's entries by ScheduledAt ascending, seeding the
// templates on the first empty list.
func (s *CalendarSync) List(ctx context.Context, tenantID string) ([]domain.ScheduledEntry, error) {
	ctx, span := tracer.Start(ctx, "CalendarSync.List")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenantID))

	docs, err := listOrSeed(ctx, s.store, s.seeds, tenantID, s.primary, s.templates, s.metrics, s.logger)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.ScheduledEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, s.decode(tenantID, doc))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ScheduledAt.Before(entries[j].ScheduledAt)
	})
	return entries, nil
}

// Get returns one entry from the primary collection.
func (s *CalendarSync) Get(ctx context.Context, tenantID, id string) (*domain.ScheduledEntry, error) {
	ctx, span := tracer.Start(ctx, "CalendarSync.Get")
	defer span.End()

	doc, err := s.store.Get(ctx, tenantID, s.primary, id)
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	if doc == nil {
		return nil, &domain.ErrNotFound{Resource: "entry", ID: id}
	}
	e := s.decode(tenantID, *doc)
	return &e, nil
}

// ListMirror returns the mirror projections by ScheduledAt ascending.
func (s *CalendarSync) ListMirror(ctx context.Context, tenantID string) ([]domain.MirrorRecord, error) {
	ctx, span := tracer.Start(ctx, "CalendarSync.ListMirror")
	defer span.End()

	docs, err := s.store.ListAll(ctx, tenantID, s.mirror)
	if err != nil {
		return nil, fmt.Errorf("list mirror: %w", err)
	}
	out := make([]domain.MirrorRecord, 0, len(docs))
	for _, doc := range docs {
		m := docstore.MirrorFromDocument(doc, s.loc)
		if !m.ScheduledAt.IsZero() {
			m.ScheduledAt = m.ScheduledAt.In(s.loc)
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

// Create inserts the primary record, then the mirror under the same id.
func (s *CalendarSync) Create(ctx context.Context, tenantID string, in domain.EntryInput) (*domain.ScheduledEntry, error) {
	ctx, span := tracer.Start(ctx, "CalendarSync.Create")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenantID))

	e := newEntry(tenantID, in)
	if e.Title == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "obrigatório"}
	}
	if e.ScheduledAt.IsZero() {
		return nil, &domain.ErrValidation{Field: "scheduled_at", Message: "obrigatório"}
	}
	e.ScheduledAt = e.ScheduledAt.In(s.loc)

	id, err := s.store.Add(ctx, tenantID, s.primary, docstore.EntryFields(e))
	if err != nil {
		return nil, fmt.Errorf("create entry: %w", err)
	}
	e.ID = id

	if err := s.store.Set(ctx, tenantID, s.mirror, id, docstore.MirrorFields(e.Mirror())); err != nil {
		s.partial(tenantID, id, "create", err)
	}
	return &e, nil
}

// Update patches the primary record, then the mirrored fields it changed.
func (s *CalendarSync) Update(ctx context.Context, tenantID, id string, patch domain.EntryPatch) (*domain.ScheduledEntry, error) {
	ctx, span := tracer.Start(ctx, "CalendarSync.Update")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenantID), attribute.String("entry", id))

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, &domain.ErrValidation{Field: "title", Message: "obrigatório"}
		}
		patch.Title = &title
	}
	if patch.ScheduledAt != nil {
		at := patch.ScheduledAt.In(s.loc)
		patch.ScheduledAt = &at
	}
	if patch.Empty() {
		return s.Get(ctx, tenantID, id)
	}

	if err := s.store.Update(ctx, tenantID, s.primary, id, docstore.EntryPatchFields(patch)); err != nil {
		return nil, fmt.Errorf("update entry %s: %w", id, err)
	}

	if patch.TouchesMirror() {
		if err := s.store.Update(ctx, tenantID, s.mirror, id, docstore.MirrorPatchFields(patch)); err != nil {
			s.partial(tenantID, id, "update", err)
		}
	}
	return s.Get(ctx, tenantID, id)
}

// Delete removes the primary record, then the mirror. A failure on either
// side is an *domain.ErrSyncFatal.
func (s *CalendarSync) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracer.Start(ctx, "CalendarSync.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenantID), attribute.String("entry", id))

	if err := s.store.Delete(ctx, tenantID, s.primary, id); err != nil {
		return s.fatal(tenantID, id, domain.SidePrimary, err)
	}
	if err := s.store.Delete(ctx, tenantID, s.mirror, id); err != nil {
		return s.fatal(tenantID, id, domain.SideMirror, err)
	}
	return nil
}

// ToggleCompleted flips an entry between Concluído and Pendente on the
// production board. Only the primary record carries a status.
func (s *CalendarSync) ToggleCompleted(ctx context.Context, tenantID, id string) (*domain.ScheduledEntry, error) {
	ctx, span := tracer.Start(ctx, "CalendarSync.ToggleCompleted")
	defer span.End()

	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	next := domain.StatusCompleted
	if current.Status == domain.StatusCompleted {
		next = domain.StatusPending
	}
	if err := s.store.Update(ctx, tenantID, s.primary, id, docstore.EntryPatchFields(domain.EntryPatch{Status: &next})); err != nil {
		return nil, fmt.Errorf("toggle entry %s: %w", id, err)
	}
	current.Status = next
	return current, nil
}

func (s *CalendarSync) partial(tenantID, id, op string, err error) {
	perr := &domain.ErrSyncPartial{TenantID: tenantID, EntryID: id, Op: op, Err: err}
	s.metrics.IncrMirrorFailure(op)
	s.logger.Warn("mirror write failed", zap.Error(perr))
}

func (s *CalendarSync) fatal(tenantID, id, side string, err error) error {
	ferr := &domain.ErrSyncFatal{TenantID: tenantID, EntryID: id, Side: side, Err: err}
	s.metrics.IncrSyncFatal(side)
	s.logger.Error("calendar delete failed", zap.Error(ferr))
	return ferr
}
