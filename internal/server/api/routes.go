package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/maruaican/Quick-Folder-Deleter/internal/database"
	"github.com/maruaican/Quick-Folder-Deleter/internal/metrics"
)

const (
	defaultLimit = 20
	maxLimit     = 500
)

// History is the read side of the deletion history
type History interface {
	GetRecentOperations(limit int) ([]database.OperationRecord, error)
	GetOperationsByOutcome(outcome string, limit int) ([]database.OperationRecord, error)
	GetOperation(id string) (*database.OperationRecord, error)
	GetOperationItems(id string, kinds ...string) ([]database.ItemRecord, error)
}

// ErrorResponse represents error message
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OperationsResponse lists operation summaries, newest first
type OperationsResponse struct {
	Operations []database.OperationRecord `json:"operations"`
	Count      int                        `json:"count"`
	Limit      int                        `json:"limit"`
}

// ItemsResponse lists the recorded events of one operation
type ItemsResponse struct {
	Operation database.OperationRecord `json:"operation"`
	Items     []database.ItemRecord    `json:"items"`
}

// HealthHandler reports liveness. HEAD gets headers only.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := http.StatusOK
	body := map[string]string{"status": "healthy"}
	if hc := metrics.GetHealthChecker(); hc != nil && !hc.IsHealthy() {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	respondJSON(w, body, status)
}

// OperationsHandler serves GET /api/v1/operations?limit=N[&outcome=O]
func OperationsHandler(h History, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultLimit
		if lStr := r.URL.Query().Get("limit"); lStr != "" {
			l, err := strconv.Atoi(lStr)
			if err != nil || l <= 0 {
				respondError(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			if l > maxLimit {
				l = maxLimit
			}
			limit = l
		}

		var (
			records []database.OperationRecord
			err     error
		)
		if outcome := r.URL.Query().Get("outcome"); outcome != "" {
			records, err = h.GetOperationsByOutcome(outcome, limit)
		} else {
			records, err = h.GetRecentOperations(limit)
		}
		if err != nil {
			logger.Printf("[ERROR] history query failed: %v", err)
			respondError(w, "failed to query history", http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []database.OperationRecord{}
		}

		respondJSON(w, OperationsResponse{Operations: records, Count: len(records), Limit: limit}, http.StatusOK)
	}
}

// OperationItemsHandler serves GET /api/v1/operations/{id}/items[?kind=K...]
func OperationItemsHandler(h History, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		op, err := h.GetOperation(id)
		if err != nil {
			if database.IsNotFound(err) {
				respondError(w, "operation not found: "+id, http.StatusNotFound)
				return
			}
			logger.Printf("[ERROR] history lookup of %s failed: %v", id, err)
			respondError(w, "failed to query history", http.StatusInternalServerError)
			return
		}

		items, err := h.GetOperationItems(id, r.URL.Query()["kind"]...)
		if err != nil {
			logger.Printf("[ERROR] history items of %s failed: %v", id, err)
			respondError(w, "failed to query history", http.StatusInternalServerError)
			return
		}
		if items == nil {
			items = []database.ItemRecord{}
		}

		respondJSON(w, ItemsResponse{Operation: *op, Items: items}, http.StatusOK)
	}
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    status,
		Message: message,
	}, status)
}
