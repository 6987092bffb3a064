package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
)

// Health check handler
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Store.DB().PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UploadRequest carries already split log lines from one source
type UploadRequest struct {
	Source string   `json:"source"`
	Lines  []string `json:"lines"`
}

func (s *Server) uploadEvidence(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := decode(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.app.Ingestor.Ingest(r.Context(), req.Source, req.Lines, attribution(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ManualEntryRequest carries one analyst-typed log line
type ManualEntryRequest struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

func (s *Server) manualEvidence(w http.ResponseWriter, r *http.Request) {
	var req ManualEntryRequest
	if err := decode(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ev, err := s.app.Ingestor.IngestManual(r.Context(), req.Source, req.Message, attribution(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) listEvidence(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.EvidenceFilter{
		Source: q.Get("source"),
		Status: models.ProcessingStatus(q.Get("status")),
		Page:   pageFrom(r),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeMessage(w, http.StatusBadRequest, "Invalid status")
		return
	}

	evidence, err := storage.NewEvidenceRepository(s.app.Store).List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"evidence": evidence,
		"count":    len(evidence),
	})
}

// runAnalysis classifies one batch, or the whole backlog with ?all=true
func (s *Server) runAnalysis(w http.ResponseWriter, r *http.Request) {
	all, ok := boolParam(r, "all")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid all parameter")
		return
	}

	attr := attribution(r)
	if all != nil && *all {
		res, err := s.app.Processor.Drain(r.Context(), attr)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	res, err := s.app.Detection.RunBatch(r.Context(), attr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listClassifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	suspicious, ok := boolParam(r, "suspicious")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid suspicious parameter")
		return
	}
	f := storage.ClassificationFilter{
		AttackType: models.AttackType(q.Get("attack_type")),
		Severity:   models.Severity(q.Get("severity")),
		Suspicious: suspicious,
		Page:       pageFrom(r),
	}

	classifications, err := storage.NewClassificationRepository(s.app.Store).List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"classifications": classifications,
		"count":           len(classifications),
	})
}

func (s *Server) runCorrelation(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.Correlation.Run(r.Context(), attribution(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	promoted, ok := boolParam(r, "promoted")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid promoted parameter")
		return
	}
	f := storage.EventFilter{
		AttackType: models.AttackType(q.Get("attack_type")),
		Source:     q.Get("source"),
		Promoted:   promoted,
		Page:       pageFrom(r),
	}

	events, err := storage.NewEventRepository(s.app.Store).List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func eventID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid event ID")
		return
	}

	ev, err := storage.NewEventRepository(s.app.Store).Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) promoteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid event ID")
		return
	}

	inc, err := s.app.Incidents.Promote(r.Context(), id, attribution(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.IncidentFilter{
		Status:     models.IncidentStatus(q.Get("status")),
		AttackType: q.Get("attack_type"),
		AssignedTo: q.Get("assigned_to"),
		Page:       pageFrom(r),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeMessage(w, http.StatusBadRequest, "Invalid status")
		return
	}

	incidents, err := s.app.Incidents.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

func (s *Server) getIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := s.app.Incidents.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// StatusUpdateRequest moves an incident to a new status
type StatusUpdateRequest struct {
	Status models.IncidentStatus `json:"status"`
	Notes  string                `json:"notes"`
}

func (s *Server) updateIncidentStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusUpdateRequest
	if err := decode(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	inc, err := s.app.Incidents.UpdateStatus(r.Context(), mux.Vars(r)["id"], req.Status, req.Notes, attribution(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// AssignRequest sets or clears the incident owner
type AssignRequest struct {
	AssignedTo string `json:"assigned_to"`
	Notes      string `json:"notes"`
}

func (s *Server) assignIncident(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := decode(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	inc, err := s.app.Incidents.Assign(r.Context(), mux.Vars(r)["id"], req.AssignedTo, req.Notes, attribution(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) incidentHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.app.Incidents.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": history,
		"count":   len(history),
	})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	overview, err := storage.NewSummaryRepository(s.app.Store).Overview(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.AuditFilter{
		Action: models.AuditAction(q.Get("action")),
		Actor:  q.Get("actor"),
		Page:   pageFrom(r),
	}

	entries, err := s.app.Ledger.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// verifyAudit walks the whole chain. A broken chain is still a 200 with ok=false.
func (s *Server) verifyAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.Ledger.VerifyChain(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.app.Configs.Get(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req models.DetectionConfig
	if err := decode(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cfg, err := s.app.Configs.Update(r.Context(), req, attribution(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
