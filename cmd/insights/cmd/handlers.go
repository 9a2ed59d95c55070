package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"insights-backend/internal/failure"
	"insights-backend/internal/ingest"
	"insights-backend/internal/record"
	"insights-backend/internal/session"

	"github.com/gorilla/mux"
)

type organizations interface {
	GetOrRefresh(ctx context.Context, orgIdentifier string, forceRefresh bool) (ingest.Result, error)
}

type sessionControl interface {
	Status() session.Status
	SubmitVerificationCode(code string) error
}

type handlers struct {
	orgs     organizations
	sessions sessionControl
}

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Outcome string `json:"outcome,omitempty"`
}

type organizationResponse struct {
	Outcome  string            `json:"outcome"`
	RunID    string            `json:"run_id"`
	Enriched bool              `json:"enriched"`
	Record   *record.Canonical `json:"record,omitempty"`
	Missing  record.Missing    `json:"missing,omitempty"`
}

type sessionResponse struct {
	State               string     `json:"state"`
	Generation          uint64     `json:"generation"`
	AcquiredAt          *time.Time `json:"acquired_at,omitempty"`
	FailedAt            *time.Time `json:"failed_at,omitempty"`
	LastFailure         string     `json:"last_failure,omitempty"`
	VerificationPending bool       `json:"verification_pending"`
	ChallengeStartedAt  *time.Time `json:"challenge_started_at,omitempty"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("write response", "err", err)
	}
}

// statusOf maps a pipeline error to the http status returned for it.
func statusOf(err error) int {
	switch failure.KindOf(err) {
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindInvalidCredentials, failure.KindAuthenticationIncomplete:
		return http.StatusServiceUnavailable
	case failure.KindTransientNetwork:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h handlers) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods("GET")
	r.HandleFunc("/session", h.session).Methods("GET")
	r.HandleFunc("/session/verify", h.verify).Methods("POST")
	r.HandleFunc("/organizations/{id}", h.organization).Methods("GET")
	return r
}

func (h handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h handlers) session(w http.ResponseWriter, r *http.Request) {
	status := h.sessions.Status()
	writeJSON(w, http.StatusOK, sessionResponse{
		State:               status.State.String(),
		Generation:          status.Generation,
		AcquiredAt:          optionalTime(status.AcquiredAt),
		FailedAt:            optionalTime(status.FailedAt),
		LastFailure:         status.LastFailure,
		VerificationPending: status.VerificationPending,
		ChallengeStartedAt:  optionalTime(status.ChallengeStartedAt),
	})
}

func (h handlers) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "expected a json body with a code"})
		return
	}
	err := h.sessions.SubmitVerificationCode(req.Code)
	if errors.Is(err, session.ErrNoPendingVerification) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "submitted"})
}

func (h handlers) organization(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := record.NormalizeOrgID(id); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	res, err := h.orgs.GetOrRefresh(r.Context(), id, force)
	if err != nil {
		kind := failure.KindOf(err)
		status := statusOf(err)
		if res.Outcome == ingest.OutcomeDegraded {
			// no session and nothing persisted to fall back on
			status = http.StatusServiceUnavailable
		}
		slog.WarnContext(r.Context(), "organization request failed", "org", id, "kind", kind.String(), "err", err)
		body := errorResponse{Error: err.Error(), Kind: kind.String()}
		if res.Outcome != ingest.OutcomeNone {
			body.Outcome = res.Outcome.String()
		}
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, organizationResponse{
		Outcome:  res.Outcome.String(),
		RunID:    res.RunID,
		Enriched: res.Enriched,
		Record:   res.Record,
		Missing:  res.Missing,
	})
}
