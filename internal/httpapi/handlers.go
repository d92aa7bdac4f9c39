package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/you/courseq/internal/domain"
)

type captureRequest struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	Company        string `json:"company"`
	CompanySize    string `json:"company_size"`
	ReferralSource string `json:"referral_source"`
	StepCompleted  int    `json:"step_completed"`
}

type captureResponse struct {
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	Company        string `json:"company,omitempty"`
	CompanySize    string `json:"company_size,omitempty"`
	ReferralSource string `json:"referral_source,omitempty"`
	StepCompleted  int    `json:"step_completed"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	rec, err := s.captures.Merge(r.Context(), domain.CaptureEvent{
		Email:          req.Email,
		Name:           req.Name,
		Company:        req.Company,
		CompanySize:    req.CompanySize,
		ReferralSource: req.ReferralSource,
		StepCompleted:  req.StepCompleted,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, captureResponse{
		Email:          rec.Email,
		Name:           rec.Name,
		Company:        rec.Company,
		CompanySize:    rec.CompanySize,
		ReferralSource: rec.ReferralSource,
		StepCompleted:  rec.StepCompleted,
	})
}

type submitGenerationRequest struct {
	UnitIDs              []string `json:"unit_ids"`
	Priority             string   `json:"priority"`
	EstimatedDurationSec int      `json:"estimated_duration_seconds"`
}

func (s *Server) handleSubmitGeneration(w http.ResponseWriter, r *http.Request) {
	var req submitGenerationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	priority := domain.PriorityNormal
	if req.Priority != "" {
		priority = domain.Priority(req.Priority)
	}
	job, err := domain.NewJob(req.UnitIDs, domain.Metadata{
		Mode:              domain.ModeFull,
		Priority:          priority,
		QueuedAt:          time.Now().UTC(),
		EstimatedDuration: time.Duration(req.EstimatedDurationSec) * time.Second,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.store.InsertJob(r.Context(), job); err != nil {
		s.respondError(w, err)
		return
	}
	if s.signals != nil {
		if err := s.signals.Signal(r.Context(), job.ID); err != nil {
			// advisory only, the scheduler works off the DB
			s.log.Warnw("ready-signal push failed", "job_id", job.ID, "error", err)
		}
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"job_id": job.ID})
}

type resumeRequest struct {
	CheckpointRef string `json:"checkpoint_ref"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	artifactID := chi.URLParam(r, "artifactID")
	var req resumeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	jobID, err := s.resumes.Resume(r.Context(), artifactID, req.CheckpointRef)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if s.signals != nil {
		if err := s.signals.Signal(r.Context(), jobID); err != nil {
			s.log.Warnw("ready-signal push failed", "job_id", jobID, "error", err)
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.ClaimNext(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.respondJSON(w, http.StatusOK, jobToJSON(job))
}

type progressRequest struct {
	Phase           string `json:"phase"`
	ProgressPct     int    `json:"progress_percentage"`
	SuccessfulUnits int    `json:"successful_units"`
	FailedUnits     int    `json:"failed_units"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	err := s.store.UpdateProgress(r.Context(), chi.URLParam(r, "id"), domain.ProgressUpdate{
		Phase:           req.Phase,
		ProgressPct:     req.ProgressPct,
		SuccessfulUnits: req.SuccessfulUnits,
		FailedUnits:     req.FailedUnits,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.CompleteJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type failRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	var req failRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.store.FailJob(r.Context(), chi.URLParam(r, "id"), req.Reason); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var status *domain.Status
	if v := r.URL.Query().Get("status"); v != "" {
		st := domain.Status(v)
		status = &st
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, domain.Validationf("limit must be an integer"))
			return
		}
		limit = n
	}
	jobs, err := s.store.ListJobs(r.Context(), status, limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	out := make([]jobJSON, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobToJSON(j))
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, jobToJSON(job))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var depth int64
	if s.signals != nil {
		d, err := s.signals.Depth(r.Context())
		if err != nil {
			s.respondError(w, err)
			return
		}
		depth = d
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"ready_signals": depth})
}

type jobJSON struct {
	ID                   string     `json:"id"`
	Status               string     `json:"status"`
	TotalUnits           int        `json:"total_units"`
	UnitIDs              []string   `json:"unit_ids"`
	CurrentPhase         string     `json:"current_phase,omitempty"`
	ProgressPct          int        `json:"progress_percentage"`
	SuccessfulUnits      int        `json:"successful_units"`
	FailedUnits          int        `json:"failed_units"`
	FailureReason        string     `json:"failure_reason,omitempty"`
	GenerationMode       string     `json:"generation_mode"`
	Priority             string     `json:"priority"`
	ResumePlanRef        string     `json:"resume_from_plan,omitempty"`
	SourceArtifactID     string     `json:"source_unit_id,omitempty"`
	EstimatedDurationSec int        `json:"estimated_duration_seconds,omitempty"`
	QueuedAt             time.Time  `json:"queued_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

func jobToJSON(j *domain.Job) jobJSON {
	out := jobJSON{
		ID:                   j.ID,
		Status:               string(j.Status),
		TotalUnits:           j.TotalUnits,
		UnitIDs:              j.UnitIDs,
		CurrentPhase:         j.CurrentPhase,
		ProgressPct:          j.ProgressPct,
		SuccessfulUnits:      j.SuccessfulUnits,
		FailedUnits:          j.FailedUnits,
		FailureReason:        j.FailureReason,
		GenerationMode:       string(j.Metadata.Mode),
		Priority:             string(j.Metadata.Priority),
		EstimatedDurationSec: int(j.Metadata.EstimatedDuration.Seconds()),
		QueuedAt:             j.Metadata.QueuedAt,
		StartedAt:            j.StartedAt,
		CompletedAt:          j.CompletedAt,
	}
	if j.Metadata.Resume != nil {
		out.ResumePlanRef = j.Metadata.Resume.PlanRef
		out.SourceArtifactID = j.Metadata.Resume.SourceArtifactID
	}
	return out
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	return nil
}
