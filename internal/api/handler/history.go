package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/failwatch/failwatch/internal/api/response"
	"github.com/failwatch/failwatch/internal/ledger"
)

// NewHistoryHandler returns an http.HandlerFunc for GET /api/v1/sent-history.
func NewHistoryHandler(led ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := ledger.DefaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"limit must be a positive integer", nil)
				return
			}
			limit = n
		}

		entries, err := led.List(r.Context(), limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "LEDGER_UNAVAILABLE",
				"Could not read the notification history", nil)
			return
		}

		items := make([]historyEntry, 0, len(entries))
		for _, e := range entries {
			items = append(items, historyEntry{
				ID:          e.ID.String(),
				Fingerprint: e.Fingerprint,
				JobName:     e.JobName,
				ServerName:  e.ServerName,
				FailedAt:    e.FailedAt.UTC().Format(time.RFC3339),
				SentTo:      e.SentTo,
				SentAt:      e.SentAt.UTC().Format(time.RFC3339),
			})
		}

		response.JSON(w, historyResponse{Count: len(items), Entries: items})
	}
}

// NewClearHistoryHandler returns an http.HandlerFunc for DELETE /api/v1/sent-history.
func NewClearHistoryHandler(led ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := led.Clear(r.Context()); err != nil {
			response.Error(w, http.StatusInternalServerError, "LEDGER_UNAVAILABLE",
				"Could not clear the notification history", nil)
			return
		}
		response.JSON(w, map[string]string{
			"status":  "success",
			"message": "Notification history cleared",
		})
	}
}

type historyResponse struct {
	Count   int            `json:"count"`
	Entries []historyEntry `json:"entries"`
}

type historyEntry struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`
	JobName     string `json:"job_name"`
	ServerName  string `json:"server_name"`
	FailedAt    string `json:"failed_at"`
	SentTo      string `json:"sent_to"`
	SentAt      string `json:"sent_at"`
}
