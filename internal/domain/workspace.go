package domain

import "time"

// Task is an item of a tenant's weekly focus list.
type Task struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// WeeklyFocus is the task list with its completion progress.
type WeeklyFocus struct {
	Tasks    []Task `json:"tasks"`
	Done     int    `json:"done"`
	Total    int    `json:"total"`
	Progress int    `json:"progress_percent"`
}

// Idea is a suggestion posted to a tenant's files hub.
type Idea struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Author labels used on ideas.
const (
	AuthorClient = "Cliente"
	AuthorAgency = "Agência"
)

// Document is a schemaless record addressed by (scope, collection, id).
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Directory is the agency view over every profile and tenant.
type Directory struct {
	Profiles []Profile `json:"profiles"`
	Tenants  []Tenant  `json:"tenants"`
}

// SyncMetrics is a point-in-time view of calendar sync counters.
type SyncMetrics struct {
	MirrorPartialFailures float64 `json:"mirror_partial_failures"`
	SyncFatalFailures     float64 `json:"sync_fatal_failures"`
	SeedRuns              float64 `json:"seed_runs"`
	RoleCorrections       float64 `json:"role_corrections"`
	RoleCorrectionErrors  float64 `json:"role_correction_errors"`
	TenantCacheHitRate    float64 `json:"tenant_cache_hit_rate"`
}
