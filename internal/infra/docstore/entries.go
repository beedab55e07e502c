package docstore

import (
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
)

// EntryFields encodes a full primary record.
func EntryFields(e domain.ScheduledEntry) map[string]any {
	return map[string]any{
		"date":         formatTime(e.ScheduledAt),
		"title":        e.Title,
		"type":         string(e.Kind),
		"status":       string(e.Status),
		"proprietario": nullable(e.Owner),
		"plataforma":   e.Channel,
		"url":          e.ReferenceURL,
		"copy":         e.Body,
		"description":  e.Description,
	}
}

// EntryFromDocument decodes a primary record. Date-only values are read
// as midnight in loc.
func EntryFromDocument(tenantID string, doc domain.Document, loc *time.Location) domain.ScheduledEntry {
	f := doc.Fields
	return domain.ScheduledEntry{
		ID:           doc.ID,
		TenantID:     tenantID,
		Title:        stringField(f, "title"),
		ScheduledAt:  timeField(f, "date", loc),
		Kind:         domain.EntryKind(stringField(f, "type")),
		Status:       domain.EntryStatus(stringField(f, "status")),
		Owner:        optionalString(f, "proprietario"),
		Channel:      stringField(f, "plataforma"),
		ReferenceURL: stringField(f, "url"),
		Body:         stringField(f, "copy"),
		Description:  stringField(f, "description"),
	}
}

// EntryPatchFields encodes the primary fields a patch changes.
func EntryPatchFields(p domain.EntryPatch) map[string]any {
	fields := make(map[string]any)
	if p.Title != nil {
		fields["title"] = *p.Title
	}
	if p.ScheduledAt != nil {
		fields["date"] = formatTime(*p.ScheduledAt)
	}
	if p.Kind != nil {
		fields["type"] = string(*p.Kind)
	}
	if p.Status != nil {
		fields["status"] = string(*p.Status)
	}
	switch {
	case p.ClearOwner:
		fields["proprietario"] = nil
	case p.Owner != nil:
		fields["proprietario"] = *p.Owner
	}
	if p.Channel != nil {
		fields["plataforma"] = *p.Channel
	}
	if p.ReferenceURL != nil {
		fields["url"] = *p.ReferenceURL
	}
	if p.Body != nil {
		fields["copy"] = *p.Body
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	return fields
}

// MirrorFields encodes the mirror projection.
func MirrorFields(m domain.MirrorRecord) map[string]any {
	return map[string]any{
		"titulo":        m.Title,
		"conteudo":      m.Body,
		"data_agendada": formatTime(m.ScheduledAt),
	}
}

// MirrorFromDocument decodes a mirror record. Date-only values are read
// as midnight in loc.
func MirrorFromDocument(doc domain.Document, loc *time.Location) domain.MirrorRecord {
	return domain.MirrorRecord{
		ID:          doc.ID,
		Title:       stringField(doc.Fields, "titulo"),
		Body:        stringField(doc.Fields, "conteudo"),
		ScheduledAt: timeField(doc.Fields, "data_agendada", loc),
	}
}

// TaskFields encodes a weekly focus task.
func TaskFields(t domain.Task) map[string]any {
	return map[string]any{"text": t.Text, "completed": t.Completed}
}

// TaskFromDocument decodes a weekly focus task.
func TaskFromDocument(doc domain.Document) domain.Task {
	return domain.Task{
		ID:        doc.ID,
		Text:      stringField(doc.Fields, "text"),
		Completed: boolField(doc.Fields, "completed"),
	}
}

// IdeaFields encodes a files hub idea.
func IdeaFields(i domain.Idea) map[string]any {
	return map[string]any{
		"text":      i.Text,
		"author":    i.Author,
		"timestamp": formatTime(i.Timestamp),
	}
}

// IdeaFromDocument decodes a files hub idea.
func IdeaFromDocument(doc domain.Document) domain.Idea {
	return domain.Idea{
		ID:        doc.ID,
		Text:      stringField(doc.Fields, "text"),
		Author:    stringField(doc.Fields, "author"),
		Timestamp: timeField(doc.Fields, "timestamp", time.UTC),
	}
}

// MirrorPatchFields encodes the mirrored fields a patch changes.
func MirrorPatchFields(p domain.EntryPatch) map[string]any {
	fields := make(map[string]any, 3)
	if p.Title != nil {
		fields["titulo"] = *p.Title
	}
	if p.Body != nil {
		fields["conteudo"] = *p.Body
	}
	if p.ScheduledAt != nil {
		fields["data_agendada"] = formatTime(*p.ScheduledAt)
	}
	return fields
}
