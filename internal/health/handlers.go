package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const defaultProbeTimeout = 500 * time.Millisecond

// Probe checks one dependency within its timeout.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

func (p Probe) run(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Check(ctx)
}

// Handler serves liveness and readiness endpoints. Liveness is
// unconditional; readiness runs every probe and fails when any does.
type Handler struct {
	Probes []Probe
}

func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if len(h.Probes) == 0 {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}

	status := make(map[string]string, len(h.Probes))
	healthy := true
	for _, p := range h.Probes {
		if err := p.run(r.Context()); err != nil {
			status[p.Name] = err.Error()
			healthy = false
			continue
		}
		status[p.Name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}
