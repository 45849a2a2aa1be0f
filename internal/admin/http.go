package admin

import (
	"encoding/json"
	"net/http"

	"github.com/inkwell/inkwell-api/internal/request"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteError writes the 401 or 403 envelope for a failed check.
func WriteError(w http.ResponseWriter, res Result) {
	msg := "Authentication required"
	if res.Outcome == Forbidden {
		msg = "Admin access required"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.Status())
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, Code: res.Code()})
}

// Require only lets administrators through, exposing the user and profile on the request context.
func Require(g *Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := g.EnsureAdmin(r)
			if res.Outcome != OK {
				WriteError(w, res)
				return
			}
			ctx := request.WithUser(r.Context(), res.User)
			ctx = request.WithProfile(ctx, res.Profile)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
