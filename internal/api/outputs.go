package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"regulonlabs.com/casedesk/internal/metrics"
	"regulonlabs.com/casedesk/internal/models"
	"regulonlabs.com/casedesk/internal/pipeline"
)

// SubmitOutputHandler handles POST /api/cases/{id}/outputs, the core write
// path. All sequencing lives in the pipeline; this handler only translates
// between HTTP and pipeline outcomes.
func (s *Server) SubmitOutputHandler(w http.ResponseWriter, r *http.Request) {
	agent, err := GetAgentFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, ErrInvalidAPIKey, "")
		return
	}
	caseID := mux.Vars(r)["id"]

	var req SubmitOutputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordSubmission(metrics.SubmissionInvalidBody)
		respondError(w, http.StatusBadRequest, ErrInvalidJSON, "")
		return
	}

	kind := models.OutputKind(req.Kind)
	if req.Kind == "" {
		kind = models.OutputDraft
	}
	if kind != models.OutputDraft && kind != models.OutputFinal {
		metrics.RecordSubmission(metrics.SubmissionInvalidBody)
		respondError(w, http.StatusBadRequest, "kind must be 'draft' or 'final'", "")
		return
	}

	result, rejection, err := s.pipeline.Submit(r.Context(), pipeline.Request{
		CaseID:       caseID,
		AgentID:      agent.ID,
		Kind:         kind,
		Content:      req.Content,
		Citations:    req.Citations,
		Flags:        req.Flags,
		RequestToken: req.RequestToken,
	})
	if err != nil {
		log.Error().Err(err).Str("case", caseID).Str("agent", agent.ID).Msg("Output submission failed")
		metrics.RecordSubmission(metrics.SubmissionError)
		respondError(w, http.StatusInternalServerError, "Internal server error",
			"Safe to retry with the same requestToken")
		return
	}
	if rejection != nil {
		s.rejectSubmission(w, rejection)
		return
	}

	if result.Replayed {
		metrics.RecordSubmission(metrics.SubmissionReplayed)
		respondSuccess(w, http.StatusOK, result.Response)
		return
	}
	metrics.RecordSubmission(metrics.SubmissionAccepted)
	respondSuccess(w, http.StatusCreated, result.Response)
}

func (s *Server) rejectSubmission(w http.ResponseWriter, rej *pipeline.Rejection) {
	switch rej.Reason {
	case pipeline.ReasonRateLimited:
		metrics.RecordSubmission(metrics.SubmissionRateLimited)
		w.Header().Set(RetryAfterHeader, strconv.Itoa(rej.RetryAfterSeconds))
		respondError(w, http.StatusTooManyRequests, ErrRateLimited,
			"Retry after "+strconv.Itoa(rej.RetryAfterSeconds)+" seconds")
	case pipeline.ReasonNotFound:
		metrics.RecordSubmission(metrics.SubmissionNotFound)
		respondError(w, http.StatusNotFound, rej.Message, "")
	case pipeline.ReasonCitationsRequired:
		metrics.RecordSubmission(metrics.SubmissionCitationsRequired)
		respondError(w, http.StatusBadRequest, rej.Message,
			"Final outputs on policy_qa cases must cite at least one policy chunk")
	case pipeline.ReasonInvalidCitations:
		metrics.RecordSubmission(metrics.SubmissionInvalidCitations)
		respondError(w, http.StatusBadRequest, rej.Message,
			"Check /api/policies for valid policy and chunk IDs")
	default:
		metrics.RecordSubmission(metrics.SubmissionInvalidBody)
		respondError(w, http.StatusBadRequest, rej.Message, "")
	}
}
