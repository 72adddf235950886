package cases

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/medqueue/core/model"
)

type memStore struct {
	cases      []model.Case
	lastStatus model.CaseStatus
	err        error
}

func (m *memStore) ListCases(_ context.Context, hospitalID string, status model.CaseStatus) ([]model.Case, error) {
	m.lastStatus = status
	if m.err != nil {
		return nil, m.err
	}
	var res []model.Case
	for _, c := range m.cases {
		if c.HospitalID == hospitalID && (status == "" || c.Status == status) {
			res = append(res, c)
		}
	}
	return res, nil
}

func sample() *memStore {
	t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return &memStore{cases: []model.Case{
		{ID: "c1", HospitalID: "h1", Status: model.StatusPending, Urgency: model.UrgencyUrgent, CreatedAt: t0, SLADeadline: t0.Add(time.Hour)},
		{ID: "c2", HospitalID: "h2", Status: model.StatusPending, CreatedAt: t0, SLADeadline: t0.Add(time.Hour)},
	}}
}

func TestHandlerAuthAndFilters(t *testing.T) {
	store := sample()
	h := NewHandler(store, "tok")

	req := httptest.NewRequest(http.MethodGet, "/api/cases?hospital_id=h1&status=pending", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}
	var out []model.Case
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].ID != "c1" {
		t.Fatalf("unexpected cases %+v", out)
	}
	if store.lastStatus != model.StatusPending {
		t.Fatalf("status filter not forwarded: %q", store.lastStatus)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/cases?hospital_id=h1", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestHandlerCSV(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(sample(), "").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/cases?hospital_id=h1&format=csv", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "case_id,") || !strings.HasPrefix(lines[1], "c1,h1,") {
		t.Fatalf("unexpected csv %q", rr.Body.String())
	}
}

func TestHandlerErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		err    error
		want   int
	}{
		{"missing hospital", http.MethodGet, "/api/cases", nil, http.StatusBadRequest},
		{"bad status", http.MethodGet, "/api/cases?hospital_id=h1&status=lost", nil, http.StatusBadRequest},
		{"bad format", http.MethodGet, "/api/cases?hospital_id=h1&format=xml", nil, http.StatusBadRequest},
		{"post", http.MethodPost, "/api/cases?hospital_id=h1", nil, http.StatusMethodNotAllowed},
		{"store failure", http.MethodGet, "/api/cases?hospital_id=h1", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			NewHandler(&memStore{err: tt.err}, "").ServeHTTP(rr, httptest.NewRequest(tt.method, tt.url, nil))
			if rr.Code != tt.want {
				t.Fatalf("status %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestHandlerEmptyList(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(&memStore{}, "").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/cases?hospital_id=h9", nil))
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("body %q", rr.Body.String())
	}
}
