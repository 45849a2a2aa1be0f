package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/inkwell/inkwell-api/internal/request"
)

// AuthHandler serves session information for the signed-in caller.
type AuthHandler struct{}

// NewAuthHandler creates a new auth handler
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// RegisterRoutes registers auth routes on a router already prefixed with /api/auth.
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMe).Methods(http.MethodGet)
}

// GetMe returns the current user.
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", "Authentication required")
		return
	}
	respondJSON(w, http.StatusOK, user)
}
