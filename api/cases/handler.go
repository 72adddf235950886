// Package cases exposes read-only case listings over HTTP.
package cases

import (
	"context"
	"net/http"

	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/pkg/export"
)

// Lister reads the cases of a hospital.
type Lister interface {
	ListCases(ctx context.Context, hospitalID string, status model.CaseStatus) ([]model.Case, error)
}

// NewHandler returns an HTTP handler for GET /api/cases. The hospital_id
// parameter is required; status filters by case status and format selects
// json (default) or csv. Requests must include an Authorization header with
// "Bearer <token>" when token is non-empty.
func NewHandler(store Lister, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		params := r.URL.Query()
		hospitalID := params.Get("hospital_id")
		if hospitalID == "" {
			http.Error(w, "hospital_id is required", http.StatusBadRequest)
			return
		}
		status := model.CaseStatus(params.Get("status"))
		switch status {
		case "", model.StatusPending, model.StatusAssigned, model.StatusCompleted, model.StatusCancelled:
		default:
			http.Error(w, "unknown status "+string(status), http.StatusBadRequest)
			return
		}
		write := export.WriteJSON
		contentType := "application/json"
		switch params.Get("format") {
		case "", "json":
		case "csv":
			write, contentType = export.WriteCSV, "text/csv"
		default:
			http.Error(w, "unknown format", http.StatusBadRequest)
			return
		}

		records, err := store.ListCases(r.Context(), hospitalID, status)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		if err := write(w, records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
