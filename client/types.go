package client

import "time"

// ServerInfo describes the remote server instance.
type ServerInfo struct {
	ServerName   string   `json:"server_name"`
	Version      string   `json:"version"`
	Build        string   `json:"build"`
	LicenseState string   `json:"license_state"`
	Roles        []string `json:"roles"`
}

// ClusterInfo describes the indexing cluster configuration.
type ClusterInfo struct {
	Mode              string `json:"mode"` // manager|peer|searchhead|disabled
	ReplicationFactor int    `json:"replication_factor"`
	SearchFactor      int    `json:"search_factor"`
	ManagerURI        string `json:"manager_uri"`
}

// PeerInfo describes one cluster peer.
type PeerInfo struct {
	Label       string `json:"label"`
	Status      string `json:"status"`
	Site        string `json:"site"`
	BucketCount int64  `json:"bucket_count"`
}

// IndexInfo describes one index.
type IndexInfo struct {
	Name        string `json:"name"`
	EventCount  int64  `json:"event_count"`
	CurrentSize int64  `json:"current_size_bytes"`
	MaxSize     int64  `json:"max_size_bytes"`
	MinTime     string `json:"min_time"`
	MaxTime     string `json:"max_time"`
}

// LicensePool is one license pool's quota and consumption.
type LicensePool struct {
	Name       string `json:"name"`
	QuotaBytes int64  `json:"quota_bytes"`
	UsedBytes  int64  `json:"used_bytes"`
}

// LicenseUsage summarizes license consumption across pools.
type LicenseUsage struct {
	QuotaBytes int64         `json:"quota_bytes"`
	UsedBytes  int64         `json:"used_bytes"`
	Pools      []LicensePool `json:"pools"`
}

// SearchJobOptions tunes a new search job.
type SearchJobOptions struct {
	// EarliestTime and LatestTime bound the search window; empty means
	// server defaults.
	EarliestTime string
	LatestTime   string

	// MaxCount caps the result set. Zero means server default.
	MaxCount int
}

// JobStatus is one snapshot of a search job's progress.
type JobStatus struct {
	JobID       string  `json:"job_id"`
	State       string  `json:"state"` // queued|running|done|failed
	Done        bool    `json:"done"`
	Progress    float64 `json:"progress"` // fractional, 0.0-1.0
	ScanCount   int64   `json:"scan_count"`
	EventCount  int64   `json:"event_count"`
	ResultCount int64   `json:"result_count"`
}

// Event is one event for batch ingestion.
type Event struct {
	Time       time.Time `json:"time"`
	Host       string    `json:"host,omitempty"`
	Source     string    `json:"source,omitempty"`
	SourceType string    `json:"sourcetype,omitempty"`
	Index      string    `json:"index,omitempty"`
	Data       string    `json:"data"`
}

// ResourceSummary is the result of one aggregated fetch. It is always
// produced, even for failed fetches: a failure is a status label and a
// detail string, never a missing entry.
type ResourceSummary struct {
	Resource string // resource type name as requested
	Count    int    // item count, zero on failure
	Status   string // "ok", "error", "timeout", "cancelled"
	Detail   string // error detail, empty on success
}
