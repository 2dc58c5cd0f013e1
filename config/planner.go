package config

import (
	"strings"
	"time"
)

// PlannerConfig configures the outbound connection to the external planner
// service and the callback it is asked to deliver results to.
type PlannerConfig struct {
	// BaseURL is the planner service endpoint jobs are submitted to.
	BaseURL string `env:"PLANNER_BASE_URL" envDefault:"http://localhost:9090"`

	// CallbackBaseURL is the externally reachable base URL of this service;
	// the per-job callback path is appended to it.
	CallbackBaseURL string `env:"PLANNER_CALLBACK_BASE_URL" envDefault:"http://localhost:8080"`

	// CallbackSecret is the shared secret the planner must echo back in the
	// X-Planner-Token header when delivering a callback.
	CallbackSecret string `env:"PLANNER_CALLBACK_SECRET,required"`

	// SubmitTimeout bounds the outbound submit call. The call only has to be
	// accepted by the planner, not completed, so it stays short.
	SubmitTimeout time.Duration `env:"PLANNER_SUBMIT_TIMEOUT" envDefault:"5s"`
}

// Sanitize applies guardrails to planner configuration values.
func (p *PlannerConfig) Sanitize() {
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	p.CallbackBaseURL = strings.TrimRight(strings.TrimSpace(p.CallbackBaseURL), "/")
	if p.SubmitTimeout <= 0 {
		p.SubmitTimeout = 5 * time.Second
	}
}

// WorkerConfig contains dispatch worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of queue deliveries processed in parallel.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"4"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
}

// MetricsConfig configures the StatsD metrics sink.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"false"`
	Address string `env:"METRICS_ADDRESS" envDefault:"localhost:8125"`
	Prefix  string `env:"METRICS_PREFIX"  envDefault:"wanderplan"`
}
