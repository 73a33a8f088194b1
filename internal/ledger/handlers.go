package ledger

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/zombor/ledger-sense/internal/commit"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

func jsonMessage(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"message": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ownedBy reports whether every row belongs to userID
func ownedBy[T any](rows []T, userID string, owner func(T) commit.UserID) bool {
	for _, row := range rows {
		if string(owner(row)) != userID {
			return false
		}
	}
	return true
}

func (s *Server) handleStoreTransactions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rows []commit.SalesRow `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Rows) == 0 {
		jsonError(w, "No rows provided", http.StatusBadRequest)
		return
	}

	userID := userFromContext(r.Context())
	if !ownedBy(req.Rows, userID, func(row commit.SalesRow) commit.UserID { return row.UserID }) {
		slog.Warn("Rejecting rows for another user", "user", userID, "rows", len(req.Rows))
		jsonError(w, "Invalid UserId(s) provided", http.StatusBadRequest)
		return
	}

	stored, err := s.store.StoreTransactions(r.Context(), req.Rows)
	if err != nil {
		slog.Error("Error storing transactions", "user", userID, "rows", len(req.Rows), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Server error", "details": err.Error()})
		return
	}

	slog.Info("Transactions stored", "user", userID, "rows", len(stored))
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Rows stored successfully",
		"data":    stored,
	})
}

func (s *Server) handleStoreInventory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rows []commit.InventoryRow `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Rows) == 0 {
		jsonError(w, "No rows provided", http.StatusBadRequest)
		return
	}

	userID := userFromContext(r.Context())
	if !ownedBy(req.Rows, userID, func(row commit.InventoryRow) commit.UserID { return row.UserID }) {
		slog.Warn("Rejecting rows for another user", "user", userID, "rows", len(req.Rows))
		jsonError(w, "Invalid UserId(s) provided", http.StatusBadRequest)
		return
	}

	stored, err := s.store.StoreInventory(r.Context(), req.Rows)
	if err != nil {
		slog.Error("Error storing inventory", "user", userID, "rows", len(req.Rows), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Server error", "details": err.Error()})
		return
	}

	slog.Info("Inventory stored", "user", userID, "rows", len(stored))
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Rows stored successfully",
		"data":    stored,
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := s.store.ListTransactions(r.Context(), userFromContext(r.Context()))
	if err != nil {
		slog.Error("Error listing transactions", "error", err)
		jsonError(w, "Server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": transactions})
}

func (s *Server) handleListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListInventory(r.Context(), userFromContext(r.Context()))
	if err != nil {
		slog.Error("Error listing inventory", "error", err)
		jsonError(w, "Server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items})
}
