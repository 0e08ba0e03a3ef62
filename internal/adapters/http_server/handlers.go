// internal/adapters/http_server/handlers.go
package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"reviewdesk/internal/app"
	"reviewdesk/internal/domain"
)

// YelpAuthorizer starts the Yelp OAuth flow.
type YelpAuthorizer interface {
	Enabled() bool
	AuthCodeURL(state string) string
}

type Handlers struct {
	Sessions *app.SessionService
	Business *app.BusinessService
	Queries  *app.QueryService
	Sync     *app.SyncEngine
	YelpAuth YelpAuthorizer // nil disables /business/yelp/oauth
	AppURL   string
	Secure   bool // mark cookies Secure
}

var errUnauthorized = &domain.Error{Kind: domain.KindUnauthorized, Msg: "Unauthorized"}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Post("/auth/google", h.login)
	s.mux.Post("/auth/logout", h.logout)

	s.mux.Group(func(r chi.Router) {
		r.Use(RequireSession(h.Sessions))

		r.Get("/user", h.me)
		r.Get("/user/profile", h.userProfile)
		r.Get("/business-profile", h.getBusinessProfile)
		r.Post("/business-profile", h.saveBusinessProfile)
		r.Get("/business/info", h.businessInfo)

		r.Get("/business/yelp/search", h.yelpSearch)
		r.Post("/business/yelp/connect", h.yelpConnect)
		r.Post("/business/yelp/import", h.yelpImport)
		r.Post("/business/yelp/verify", h.yelpVerify)
		r.Post("/business/yelp/disconnect", h.yelpDisconnect)
		r.Post("/business/yelp/sync", h.yelpSync)
		r.Get("/business/yelp/sync/stats", h.yelpSyncStats)
		r.Get("/business/yelp/sync/history", h.yelpSyncHistory)
		r.Get("/business/yelp/details", h.yelpDetails)
		r.Get("/business/yelp/preview", h.yelpPreview)
		r.Get("/business/yelp/reviews", h.yelpLiveReviews)
		r.Get("/business/yelp/oauth", h.yelpOAuthStart)
		r.Get("/business/yelp/callback", h.yelpOAuthCallback)

		r.Post("/business/google", h.googlePlace)
		r.Post("/business/google/connect", h.googleConnect)

		r.Get("/reviews", h.listReviews)
		r.Get("/reviews/analyze", h.analyzeReviews)
	})
}

// ---- response helpers ----

func statusOf(k domain.Kind) int {
	switch k {
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindVerificationFailed:
		return http.StatusForbidden
	case domain.KindInvalid:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError renders err as the {error, details} envelope. Unclassified errors
// never leak their text.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: "Internal server error"}
	e, ok := domain.AsError(err)
	kind := domain.KindOf(err)
	if ok && kind != domain.KindUnknown {
		body.Error, body.Details = e.Msg, e.Details
	}
	status := statusOf(kind)
	switch {
	case status >= 500:
		log.Error().Err(err).Int("status", status).Msg("request failed")
	case status == http.StatusTooManyRequests:
		log.Warn().Err(err).Msg("request rate limited")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return domain.Invalid("Invalid JSON body")
}

// identity is only called behind RequireSession.
func identity(r *http.Request) *domain.Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

func (h *Handlers) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// ---- auth ----

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Credential string `json:"credential"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	tok, u, err := h.Sessions.Login(r.Context(), in.Credential)
	if err != nil {
		writeError(w, err)
		return
	}
	h.setSessionCookie(w, tok, h.Sessions.TTL())
	writeJSON(w, http.StatusOK, map[string]any{
		"user": domain.Identity{ID: u.ID, Email: u.Email, Name: u.Name, Image: u.Image},
	})
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if err := h.Sessions.Logout(r.Context(), c.Value); err != nil {
			writeError(w, err)
			return
		}
	}
	h.clearCookie(w, sessionCookie, "/")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"user": identity(r)})
}

func (h *Handlers) userProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.Business.UserProfile(r.Context(), identity(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
