package httpx

import (
	"log/slog"
	"net/http"
)

// RouterOptions groups dependencies for NewRouter.
type RouterOptions struct {
	Jobs           *JobHandlers
	Health         *HealthHandlers
	CallbackSecret string
	Logger         *slog.Logger
}

// NewRouter builds the service's HTTP handler. API routes require the
// upstream user header; the callback route requires the planner's shared
// secret instead.
func NewRouter(opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", opts.Health.Healthz)
	mux.HandleFunc("GET /readyz", opts.Health.Readyz)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/jobs", opts.Jobs.CreateJob)
	api.HandleFunc("GET /api/jobs/{id}", opts.Jobs.GetJob)
	api.HandleFunc("GET /api/jobs/{id}/status", opts.Jobs.GetStatus)
	api.HandleFunc("GET /api/jobs/{id}/result", opts.Jobs.GetResult)
	api.HandleFunc("GET /api/jobs/stats/{kind}", opts.Jobs.Stats)
	mux.Handle("/api/", RequireUser(api))

	// The planner delivers results here; it authenticates with the shared
	// secret, not a user header.
	callback := http.HandlerFunc(opts.Jobs.Callback)
	mux.Handle("POST /api/jobs/{id}/result", RequireCallbackToken(opts.CallbackSecret)(callback))

	var handler http.Handler = mux
	handler = RequestLogger(logger)(handler)
	handler = Recoverer(logger)(handler)
	return handler
}
