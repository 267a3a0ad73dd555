package model

import "time"

// SyncStatus is the persisted state of catalog ingestion
type SyncStatus string

const (
	SyncNever    SyncStatus = "never"
	SyncRunning  SyncStatus = "running"
	SyncComplete SyncStatus = "complete"
	SyncFailed   SyncStatus = "failed"
	SyncPending  SyncStatus = "pending"
)

// Settings keys used for sync state
const (
	SettingSyncStatus  = "sync_status"
	SettingLastSyncAt  = "last_sync_at"
	SettingLastSyncErr = "last_sync_error"
	SettingLastAttempt = "last_attempt_at"
)

// SyncState is the snapshot of sync settings read at a point in time
type SyncState struct {
	Status      SyncStatus `json:"status"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
	LastAttempt *time.Time `json:"last_attempt_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// CatalogEndpoint is one upstream listing to ingest. The declared
// Classification is authoritative for every program created from it.
type CatalogEndpoint struct {
	Category       string   `koanf:"category" json:"category" validate:"required"`
	Classification Division `koanf:"classification" json:"classification" validate:"required"`
	Gender         string   `koanf:"gender" json:"gender"`
	URL            string   `koanf:"url" json:"url" validate:"required,url"`
}
