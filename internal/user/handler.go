package user

import (
	"net/http"

	"rentchat/internal/httpjson"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Me returns the authenticated caller's directory record.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "No authentication token, access denied")
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"success": true, "user": id.User})
}
