package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/buildinfo"
	"github.com/matzehuels/stackscan/pkg/findings"
	"github.com/matzehuels/stackscan/pkg/orchestrator"
)

type healthResponse struct {
	Status string         `json:"status"`
	Build  buildinfo.Info `json:"build"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Build: buildinfo.Get()})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Status(r.Context(), false)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type agentsResponse struct {
	Agents []*agent.Record `json:"agents"`
}

// listAgents accepts an optional ?status= filter.
func (h *handlers) listAgents(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Status(r.Context(), true)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	want := agent.Status(r.URL.Query().Get("status"))
	out := make([]*agent.Record, 0, len(report.Agents))
	for _, rec := range report.Agents {
		if want == "" || rec.Status == want {
			out = append(out, rec)
		}
	}
	writeJSON(w, http.StatusOK, agentsResponse{Agents: out})
}

func (h *handlers) getAgent(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Agent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type findingsResponse struct {
	*findings.Report
	Summary map[string]int `json:"summary"`
}

func (h *handlers) findings(w http.ResponseWriter, r *http.Request) {
	q := orchestrator.FindingsQuery{Resource: r.URL.Query().Get("resource")}
	if s := r.URL.Query().Get("min_severity"); s != "" {
		sev, err := findings.ParseSeverity(s)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		q.MinSeverity = sev
	}
	report, err := h.svc.Findings(r.Context(), q)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, findingsResponse{Report: report, Summary: report.Summary()})
}

func (h *handlers) cache(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.CacheStatus(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) graph(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Graph(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
