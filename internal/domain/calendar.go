package domain

import "time"

// EntryStatus is the production status of a scheduled entry.
type EntryStatus string

const (
	StatusScheduled    EntryStatus = "Agendado"
	StatusPending      EntryStatus = "Pendente"
	StatusInProduction EntryStatus = "Em produção"
	StatusRecorded     EntryStatus = "Gravado"
	StatusEdited       EntryStatus = "Editado"
	StatusPosted       EntryStatus = "Postado"
	StatusCompleted    EntryStatus = "Concluído"
)

// EntryKind classifies a scheduled entry.
type EntryKind string

const (
	KindReels     EntryKind = "REELS"
	KindPost      EntryKind = "POST"
	KindInstagram EntryKind = "INSTAGRAM"
	KindTikTok    EntryKind = "TIKTOK"
	KindBlog      EntryKind = "BLOG"
	KindRecording EntryKind = "GRAVACAO"
	KindMeeting   EntryKind = "REUNIAO"
)

// Defaults applied to new entries when the caller leaves them blank.
const (
	DefaultEntryStatus  = StatusPending
	DefaultEntryKind    = KindPost
	DefaultEntryChannel = "Instagram"
)

// ScheduledEntry is one item of a tenant's content calendar. The primary
// record holds every field; the mirror holds the MirrorRecord projection
// under the same ID.
type ScheduledEntry struct {
	ID           string      `json:"id"`
	TenantID     string      `json:"tenant_id"`
	Title        string      `json:"title"`
	ScheduledAt  time.Time   `json:"scheduled_at"`
	Kind         EntryKind   `json:"kind"`
	Status       EntryStatus `json:"status"`
	Owner        *string     `json:"owner"`
	Channel      string      `json:"channel"`
	ReferenceURL string      `json:"reference_url"`
	Body         string      `json:"body"`
	Description  string      `json:"description,omitempty"`
}

// Mirror returns the narrow projection kept in the mirror collection.
func (e ScheduledEntry) Mirror() MirrorRecord {
	return MirrorRecord{ID: e.ID, Title: e.Title, Body: e.Body, ScheduledAt: e.ScheduledAt}
}

// MirrorRecord is the legacy export record.
type MirrorRecord struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// EntryInput describes a new entry. Zero-valued optional fields take the
// defaults above.
type EntryInput struct {
	Title        string      `json:"title"`
	ScheduledAt  time.Time   `json:"scheduled_at"`
	Kind         EntryKind   `json:"kind"`
	Status       EntryStatus `json:"status"`
	Owner        *string     `json:"owner"`
	Channel      string      `json:"channel"`
	ReferenceURL string      `json:"reference_url"`
	Body         string      `json:"body"`
	Description  string      `json:"description"`
}

// EntryPatch is a partial update of an entry. Nil fields are unchanged.
type EntryPatch struct {
	Title        *string      `json:"title"`
	ScheduledAt  *time.Time   `json:"scheduled_at"`
	Kind         *EntryKind   `json:"kind"`
	Status       *EntryStatus `json:"status"`
	Owner        *string      `json:"owner"`
	ClearOwner   bool         `json:"clear_owner"`
	Channel      *string      `json:"channel"`
	ReferenceURL *string      `json:"reference_url"`
	Body         *string      `json:"body"`
	Description  *string      `json:"description"`
}

// TouchesMirror reports whether the patch changes a mirrored field.
func (p EntryPatch) TouchesMirror() bool {
	return p.Title != nil || p.Body != nil || p.ScheduledAt != nil
}

// Empty reports a patch that changes nothing.
func (p EntryPatch) Empty() bool {
	return !p.TouchesMirror() && p.Kind == nil && p.Status == nil &&
		p.Owner == nil && !p.ClearOwner && p.Channel == nil &&
		p.ReferenceURL == nil && p.Description == nil
}
