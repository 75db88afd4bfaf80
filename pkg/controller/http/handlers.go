package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/m-mizutani/goerr/v2"

	"github.com/kvca-ops/enrolsync/pkg/domain/types"
	"github.com/kvca-ops/enrolsync/pkg/usecase"
	"github.com/kvca-ops/enrolsync/pkg/utils/errutil"
)

type syncRequest struct {
	CategoryID        *int   `json:"category_id"`
	MaxCategories     int    `json:"max_categories"`
	MaxUsersPerCourse int    `json:"max_users_per_course"`
	Trigger           string `json:"trigger"`
}

func (x *syncRequest) input() usecase.SyncInput {
	return usecase.SyncInput{
		CategoryID:        x.CategoryID,
		MaxCategories:     x.MaxCategories,
		MaxUsersPerCourse: x.MaxUsersPerCourse,
		Trigger:           types.TriggerType(x.Trigger).Normalize(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]any{"storage": s.storageName})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSyncRequest(r)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
		return
	}

	summary, err := s.sync.Run(r.Context(), req.input())
	if err != nil {
		respondSyncError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"ok":      true,
		"summary": summary,
	})
}

// handleFinalCheck runs one sync pass followed by both dispatch passes. The
// dispatch still runs when the sync failed, so a synthesized failure alert
// leaves the outbox in the same call.
func (s *Server) handleFinalCheck(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSyncRequest(r)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
		return
	}

	summary, syncErr := s.sync.Run(r.Context(), req.input())
	if syncErr != nil && errors.Is(syncErr, usecase.ErrLockConflict) {
		respondSyncError(w, r, syncErr)
		return
	}

	dispatch, err := s.outbox.DispatchAll(r.Context())
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
		return
	}

	if syncErr != nil {
		_ = errutil.Handle(r.Context(), syncErr, "final check sync failed")
		respondJSON(w, r, http.StatusInternalServerError, map[string]any{
			"ok":       false,
			"error":    "failed",
			"message":  syncErr.Error(),
			"summary":  summary,
			"dispatch": dispatch,
		})
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"ok":       true,
		"summary":  summary,
		"dispatch": dispatch,
	})
}

func (s *Server) handleDispatchSheet(w http.ResponseWriter, r *http.Request) {
	result, err := s.outbox.DispatchSheet(r.Context())
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{"ok": true, "sheet": result})
}

func (s *Server) handleDispatchNotification(w http.ResponseWriter, r *http.Request) {
	result, err := s.outbox.DispatchNotifications(r.Context())
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{"ok": true, "notification": result})
}

func (s *Server) handleDispatchAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.outbox.DispatchAll(r.Context())
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{
		"ok":           true,
		"sheet":        results["sheet"],
		"notification": results["notification"],
	})
}

// decodeSyncRequest tolerates an empty body; all trigger parameters are
// optional.
func decodeSyncRequest(r *http.Request) (*syncRequest, error) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, goerr.Wrap(err, "failed to decode sync request")
	}
	return &req, nil
}

func respondSyncError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, usecase.ErrLockConflict) {
		respondJSON(w, r, http.StatusConflict, map[string]any{
			"ok":      false,
			"error":   "conflict",
			"message": err.Error(),
		})
		return
	}

	_ = errutil.Handle(r.Context(), err, "sync run failed")
	respondJSON(w, r, http.StatusInternalServerError, map[string]any{
		"ok":      false,
		"error":   "failed",
		"message": err.Error(),
	})
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}
