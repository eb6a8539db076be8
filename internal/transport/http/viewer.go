package http

import (
	"context"
	"net/http"
	"strings"

	"quiz-attempt-service/internal/domain"
)

// Identity headers are set by the gateway after authentication.
const (
	headerUserID    = "X-User-ID"
	headerProfileID = "X-Profile-ID"
	headerRoles     = "X-Roles"
)

type viewerKey struct{}

// ViewerFromRequest reads the authenticated caller from the identity headers.
func ViewerFromRequest(r *http.Request) domain.Viewer {
	viewer := domain.Viewer{
		UserID:    strings.TrimSpace(r.Header.Get(headerUserID)),
		ProfileID: strings.TrimSpace(r.Header.Get(headerProfileID)),
	}
	for _, role := range strings.Split(r.Header.Get(headerRoles), ",") {
		role = strings.ToUpper(strings.TrimSpace(role))
		if role != "" {
			viewer.Roles = append(viewer.Roles, domain.Role(role))
		}
	}
	return viewer
}

// requireViewer rejects requests without a user id and stores the viewer in the context.
func requireViewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewer := ViewerFromRequest(r)
		if viewer.UserID == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{Reason: "UNAUTHENTICATED", Message: "missing identity"}})
			return
		}
		ctx := context.WithValue(r.Context(), viewerKey{}, viewer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func viewerFrom(ctx context.Context) domain.Viewer {
	viewer, _ := ctx.Value(viewerKey{}).(domain.Viewer)
	return viewer
}
