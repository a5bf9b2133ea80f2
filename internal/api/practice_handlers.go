package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/praxisbook/booking/internal/practice"
)

// PracticeDirectory is the subset of the practice-management API the proxy
// endpoints forward to.
type PracticeDirectory interface {
	CustomerByEmail(ctx context.Context, email string) (*practice.Customer, error)
	Providers(ctx context.Context) ([]practice.Provider, error)
	ProviderByID(ctx context.Context, id string) (*practice.Provider, error)
	TreaterByEmail(ctx context.Context, email string) (*practice.Provider, error)
}

func customerLookupHandler(dir PracticeDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "email is required")
			return
		}

		cust, err := dir.CustomerByEmail(r.Context(), req.Email)
		if err != nil {
			handlePracticeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cust)
	}
}

func listProvidersHandler(dir PracticeDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := dir.Providers(r.Context())
		if err != nil {
			handlePracticeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, providers)
	}
}

func getProviderHandler(dir PracticeDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := dir.ProviderByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handlePracticeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func treaterLookupHandler(dir PracticeDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")
		if email == "" {
			writeError(w, http.StatusBadRequest, "missing_email", "email query parameter is required")
			return
		}

		// No assigned provider is a valid empty result, rendered as null.
		treater, err := dir.TreaterByEmail(r.Context(), email)
		if err != nil {
			handlePracticeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, treater)
	}
}

func handlePracticeError(w http.ResponseWriter, err error) {
	var apiErr *practice.APIError
	if errors.As(err, &apiErr) {
		if apiErr.NotFound() {
			writeError(w, http.StatusNotFound, "not_found", apiErr.Msg)
			return
		}
		writeError(w, http.StatusBadGateway, "practice_api_error", apiErr.Msg)
		return
	}
	writeError(w, http.StatusBadGateway, "practice_unreachable", err.Error())
}
