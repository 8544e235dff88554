package handlers

import (
	"net/http"
	"sort"

	"github.com/Adrien490/synclune-sub011/internal/domain"
	"github.com/Adrien490/synclune-sub011/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
}

// NewHealthHandlers constructs health probe handlers.
func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{system: system}
}

// Healthz is a pure liveness probe; it never touches downstream dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": domain.HealthStatusOK})
}

// Readyz reports aggregated dependency health. Any error status flips the
// response to 503 so load balancers drain the instance.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, healthReportPayload{Status: domain.HealthStatusError})
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, healthReportPayload{Status: domain.HealthStatusError})
		return
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, buildHealthReportPayload(report))
}

type healthReportPayload struct {
	Status      string               `json:"status"`
	Version     string               `json:"version,omitempty"`
	CommitSHA   string               `json:"commit_sha,omitempty"`
	Environment string               `json:"environment,omitempty"`
	Uptime      string               `json:"uptime,omitempty"`
	GeneratedAt string               `json:"generated_at,omitempty"`
	Checks      []healthCheckPayload `json:"checks,omitempty"`
}

type healthCheckPayload struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	CheckedAt string `json:"checked_at,omitempty"`
}

func buildHealthReportPayload(report domain.SystemHealthReport) healthReportPayload {
	payload := healthReportPayload{
		Status:      report.Status,
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
		GeneratedAt: formatTime(report.GeneratedAt),
	}
	if report.Uptime > 0 {
		payload.Uptime = report.Uptime.String()
	}

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		check := report.Checks[name]
		payload.Checks = append(payload.Checks, healthCheckPayload{
			Name:      name,
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
			CheckedAt: formatTime(check.CheckedAt),
		})
	}
	return payload
}
