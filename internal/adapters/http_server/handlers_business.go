package httpserver

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"reviewdesk/internal/app"
	"reviewdesk/internal/domain"
)

const (
	yelpStateCookie  = "yelp_oauth_state"
	yelpCallbackPath = "/business/yelp"
	defaultLocation  = "San Francisco Bay Area"
	yelpReviewsNote  = "Yelp API only provides up to 3 most recent reviews"
)

// yelpPayload is a business in Yelp Fusion's shape, as the client received it from search.
type yelpPayload struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Rating       float64  `json:"rating"`
	ReviewCount  int      `json:"review_count"`
	URL          string   `json:"url"`
	Phone        string   `json:"phone"`
	DisplayPhone string   `json:"display_phone"`
	Photos       []string `json:"photos"`
	Location     struct {
		Address1 string `json:"address1"`
		City     string `json:"city"`
		State    string `json:"state"`
		ZipCode  string `json:"zip_code"`
		Country  string `json:"country"`
	} `json:"location"`
}

func (p yelpPayload) external() domain.ExternalBusiness {
	return domain.ExternalBusiness{
		ID:           p.ID,
		Name:         p.Name,
		Rating:       p.Rating,
		ReviewCount:  p.ReviewCount,
		URL:          p.URL,
		Phone:        p.Phone,
		DisplayPhone: p.DisplayPhone,
		Address1:     p.Location.Address1,
		City:         p.Location.City,
		State:        p.Location.State,
		ZipCode:      p.Location.ZipCode,
		Country:      p.Location.Country,
		Photos:       p.Photos,
	}
}

func businessResponse(w http.ResponseWriter, b domain.Business, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "business": app.ViewOf(b)})
}

// ---- profile ----

func (h *Handlers) getBusinessProfile(w http.ResponseWriter, r *http.Request) {
	b, ok, err := h.Business.Profile(r.Context(), identity(r).ID)
	switch {
	case err != nil:
		writeError(w, err)
	case !ok:
		writeJSON(w, http.StatusOK, struct{}{})
	default:
		writeJSON(w, http.StatusOK, app.ViewOf(b))
	}
}

func (h *Handlers) saveBusinessProfile(w http.ResponseWriter, r *http.Request) {
	var in domain.ProfileInput
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	b, err := h.Business.SaveProfile(r.Context(), identity(r).ID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app.ViewOf(b))
}

func (h *Handlers) businessInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.Queries.Info(r.Context(), identity(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ---- yelp linkage ----

// searchLocation picks the query location, then the business's city and state,
// then the CDN geo headers, then a fixed default.
func (h *Handlers) searchLocation(r *http.Request) string {
	if loc := r.URL.Query().Get("location"); loc != "" {
		return loc
	}
	if loc := h.Business.SearchLocation(r.Context(), identity(r).ID); loc != "" {
		return loc
	}
	city, region := r.Header.Get("cf-ipcity"), r.Header.Get("cf-region")
	switch {
	case city != "" && region != "":
		return city + ", " + region
	case city != "":
		return city
	}
	return defaultLocation
}

func (h *Handlers) yelpSearch(w http.ResponseWriter, r *http.Request) {
	res, err := h.Business.SearchYelp(r.Context(), r.URL.Query().Get("term"), h.searchLocation(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"businesses": res})
}

func (h *Handlers) yelpConnect(w http.ResponseWriter, r *http.Request) {
	var in struct {
		BusinessData *yelpPayload `json:"businessData"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if in.BusinessData == nil {
		writeError(w, domain.Invalid("Yelp business data is required"))
		return
	}
	b, err := h.Business.ConnectYelp(r.Context(), identity(r).ID, in.BusinessData.external())
	businessResponse(w, b, err)
}

func (h *Handlers) yelpImport(w http.ResponseWriter, r *http.Request) {
	b, err := h.Business.ImportYelp(r.Context(), identity(r).ID)
	businessResponse(w, b, err)
}

func (h *Handlers) yelpVerify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		BusinessID  string `json:"businessId"`
		BusinessURL string `json:"businessUrl"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	v, y, err := h.Business.VerifyYelp(r.Context(), identity(r).ID, in.BusinessID, in.BusinessURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"verified":   true,
		"methods":    v.Methods,
		"message":    v.Message(),
		"businessId": y.ID,
	})
}

func (h *Handlers) yelpDisconnect(w http.ResponseWriter, r *http.Request) {
	n, err := h.Business.DisconnectYelp(r.Context(), identity(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deletedReviews": n})
}

// ---- yelp sync and live data ----

// business loads the caller's business, answering the request itself on failure.
func (h *Handlers) business(w http.ResponseWriter, r *http.Request) (domain.Business, bool) {
	b, err := h.Business.Business(r.Context(), identity(r).ID)
	if err != nil {
		writeError(w, err)
		return domain.Business{}, false
	}
	return b, true
}

func (h *Handlers) yelpSync(w http.ResponseWriter, r *http.Request) {
	b, ok := h.business(w, r)
	if !ok {
		return
	}
	res, err := h.Sync.Sync(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"syncedReviews": res.SyncedCount,
		"durationMs":    res.DurationMs,
		"note":          yelpReviewsNote,
	})
}

func (h *Handlers) yelpSyncStats(w http.ResponseWriter, r *http.Request) {
	b, ok := h.business(w, r)
	if !ok {
		return
	}
	st, err := h.Queries.SyncStats(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) yelpSyncHistory(w http.ResponseWriter, r *http.Request) {
	b, ok := h.business(w, r)
	if !ok {
		return
	}
	logs, err := h.Queries.SyncHistory(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []domain.SyncLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handlers) yelpDetails(w http.ResponseWriter, r *http.Request) {
	b, ok := h.business(w, r)
	if !ok {
		return
	}
	d, err := h.Queries.YelpDetails(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) yelpPreview(w http.ResponseWriter, r *http.Request) {
	b, ok := h.business(w, r)
	if !ok {
		return
	}
	p, err := h.Queries.Preview(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) yelpLiveReviews(w http.ResponseWriter, r *http.Request) {
	b, ok := h.business(w, r)
	if !ok {
		return
	}
	rs, err := h.Queries.LiveReviews(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": rs})
}

// ---- yelp oauth ----

func (h *Handlers) yelpOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.YelpAuth == nil || !h.YelpAuth.Enabled() {
		writeError(w, domain.ProviderUnavailable("Yelp OAuth is not configured", "", nil))
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     yelpStateCookie,
		Value:    state,
		Path:     yelpCallbackPath,
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})
	http.Redirect(w, r, h.YelpAuth.AuthCodeURL(state), http.StatusFound)
}

func (h *Handlers) yelpOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	outcome := "connected"
	c, err := r.Cookie(yelpStateCookie)
	h.clearCookie(w, yelpStateCookie, yelpCallbackPath)

	switch {
	case q.Get("error") != "":
		log.Warn().Str("error", q.Get("error")).Msg("yelp oauth denied")
		outcome = "error"
	case err != nil || c.Value == "" || c.Value != q.Get("state"):
		log.Warn().Msg("yelp oauth state mismatch")
		outcome = "error"
	default:
		if err := h.Business.StoreYelpToken(r.Context(), identity(r).ID, q.Get("code")); err != nil {
			log.Error().Err(err).Msg("yelp oauth callback failed")
			outcome = "error"
		}
	}
	http.Redirect(w, r, h.AppURL+"/dashboard?yelp="+url.QueryEscape(outcome), http.StatusFound)
}

// ---- google ----

func (h *Handlers) googlePlace(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PlaceID string `json:"placeId"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	b, err := h.Business.ConnectGooglePlace(r.Context(), identity(r).ID, in.PlaceID)
	businessResponse(w, b, err)
}

func (h *Handlers) googleConnect(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Code string `json:"code"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	b, err := h.Business.ConnectGoogleProfile(r.Context(), identity(r).ID, in.Code)
	businessResponse(w, b, err)
}

// ---- stored reviews ----

// intParam reads a positive integer query parameter bounded by max.
func intParam(r *http.Request, name string, def, max int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > max {
		return 0, domain.Invalid("Invalid " + name + ": must be an integer between 1 and " + strconv.Itoa(max))
	}
	return n, nil
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page", 1, 1<<20)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := intParam(r, "limit", 10, 100)
	if err != nil {
		writeError(w, err)
		return
	}
	b, ok := h.business(w, r)
	if !ok {
		return
	}
	out, err := h.Queries.ListReviews(r.Context(), b, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) analyzeReviews(w http.ResponseWriter, r *http.Request) {
	b, ok := h.business(w, r)
	if !ok {
		return
	}
	a, err := h.Queries.Analyze(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
