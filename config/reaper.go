package config

import "time"

// ReaperConfig contains stale-job reaper configuration.
type ReaperConfig struct {
	// Interval is the sweep period.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`

	// ProcessingTimeout is how long a job may sit in processing before the
	// reaper treats its callback as lost.
	ProcessingTimeout time.Duration `env:"REAPER_PROCESSING_TIMEOUT" envDefault:"10m"`

	// PendingMaxAge is how long a job may sit in pending before it is failed
	// as never picked up (queue stalled or publish lost).
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"1h"`

	// RetentionMaxAge prunes terminal jobs older than this. Zero disables
	// pruning; jobs are an audit trail by default.
	RetentionMaxAge time.Duration `env:"REAPER_RETENTION_MAX_AGE" envDefault:"0"`

	// BatchSize caps rows touched per sweep statement to prevent long locks.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval <= 0 {
		r.Interval = time.Minute
	}
	if r.ProcessingTimeout <= 0 {
		r.ProcessingTimeout = 10 * time.Minute
	}
	if r.PendingMaxAge <= 0 {
		r.PendingMaxAge = time.Hour
	}
	if r.RetentionMaxAge < 0 {
		r.RetentionMaxAge = 0
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
}
