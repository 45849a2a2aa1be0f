package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/inkwell/inkwell-api/internal/database"
	"github.com/inkwell/inkwell-api/internal/models"
	"github.com/inkwell/inkwell-api/internal/validation"
)

const defaultSearchLimit = 10

// SearchParams are the validated query parameters of /api/search.
type SearchParams struct {
	Query string `validate:"required,min=2,max=100"`
	Limit int    `validate:"min=1,max=50"`
}

// SearchResponse is the payload of a successful search.
type SearchResponse struct {
	Query   string                `json:"query"`
	Results []*models.PostSummary `json:"results"`
	Count   int                   `json:"count"`
}

// SearchHandler searches published posts.
type SearchHandler struct {
	posts database.PostSearcher
	log   *zap.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(posts database.PostSearcher, log *zap.Logger) *SearchHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SearchHandler{posts: posts, log: log}
}

// Search handles GET /api/search?q=...&limit=...
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	params := SearchParams{
		Query: validation.SanitizeText(r.URL.Query().Get("q")),
		Limit: defaultSearchLimit,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "INVALID_PARAMETERS", "limit must be an integer")
			return
		}
		params.Limit = n
	}

	if err := validation.Validate.Struct(params); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "INVALID_PARAMETERS", strings.Join(validation.FieldErrors(err), "; "))
		return
	}

	posts, err := h.posts.SearchPublished(r.Context(), params.Query, params.Limit)
	if err != nil {
		h.log.Error("search_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "SEARCH_FAILED", "Search is temporarily unavailable")
		return
	}
	if posts == nil {
		posts = []*models.PostSummary{}
	}

	respondJSON(w, http.StatusOK, SearchResponse{Query: params.Query, Results: posts, Count: len(posts)})
}
