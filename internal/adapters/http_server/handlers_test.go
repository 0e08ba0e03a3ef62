package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	redisad "reviewdesk/internal/adapters/redis"
	"reviewdesk/internal/adapters/yelp"
	"reviewdesk/internal/app"
	"reviewdesk/internal/domain"
	"reviewdesk/internal/storage/memory"
)

// ---- fakes ----

type fakeIDP struct{}

func (fakeIDP) VerifyIDToken(ctx context.Context, credential string) (domain.GoogleIdentity, error) {
	if !strings.HasPrefix(credential, "good:") {
		return domain.GoogleIdentity{}, errors.New("token signature invalid")
	}
	email := strings.TrimPrefix(credential, "good:")
	return domain.GoogleIdentity{Email: email, Name: "Owner"}, nil
}

type fakeAuthorizer struct{}

func (fakeAuthorizer) Enabled() bool { return true }
func (fakeAuthorizer) AuthCodeURL(state string) string {
	return "https://www.yelp.com/oauth2/authorize?state=" + state
}

// yelpStub serves the three Fusion endpoints the app uses.
type yelpStub struct {
	mu           sync.Mutex
	lastLocation string
	throttle     atomic.Bool
	reviewHits   atomic.Int32
}

const stubBusiness = `{"id":"acme-cafe-sf","name":"Acme Cafe","rating":4.5,"review_count":120,
"url":"https://www.yelp.com/biz/acme-cafe-sf?utm_source=api","phone":"+14155550100",
"location":{"address1":"1 Market St","city":"San Francisco","state":"CA","zip_code":"94105","country":"US"}}`

func (y *yelpStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/businesses/search":
		y.mu.Lock()
		y.lastLocation = r.URL.Query().Get("location")
		y.mu.Unlock()
		_, _ = io.WriteString(w, `{"businesses":[`+stubBusiness+`]}`)
	case strings.HasSuffix(r.URL.Path, "/reviews"):
		y.reviewHits.Add(1)
		if y.throttle.Load() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"reviews":[
{"id":"r1","rating":5,"text":"Great espresso","time_created":"2024-05-01 10:00:00","user":{"name":"Ana"}},
{"id":"r2","rating":3,"text":"Slow","time_created":"2024-04-01 09:00:00","user":{"name":"Ben"}}]}`)
	case r.URL.Path == "/businesses/acme-cafe-sf":
		_, _ = io.WriteString(w, stubBusiness)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":"BUSINESS_NOT_FOUND","description":"not found"}}`)
	}
}

func (y *yelpStub) location() string {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.lastLocation
}

// ---- harness ----

type env struct {
	t     *testing.T
	srv   *httptest.Server
	store *memory.Store
	yelp  *yelpStub
}

// envConfig scales the provider retry policy and the route timeout.
type envConfig struct {
	attempts int
	delay    time.Duration
	timeout  time.Duration
}

func newEnv(t *testing.T, auth YelpAuthorizer) *env {
	t.Helper()
	return newEnvWith(t, auth, envConfig{attempts: 1, delay: time.Millisecond})
}

func newEnvWith(t *testing.T, auth YelpAuthorizer, cfg envConfig) *env {
	t.Helper()
	stub := &yelpStub{}
	ys := httptest.NewServer(stub)
	t.Cleanup(ys.Close)

	yc, err := yelp.New(yelp.Config{BaseURL: ys.URL, APIKey: "k", RPS: 100, MaxAttempts: cfg.attempts, BaseDelay: cfg.delay})
	if err != nil {
		t.Fatalf("yelp.New: %v", err)
	}
	mr := miniredis.RunT(t)
	cache := redisad.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	store := memory.New()

	h := &Handlers{
		Sessions: app.NewSessionService(store, store, fakeIDP{}, time.Hour),
		Business: app.NewBusinessService(app.BusinessDeps{
			Users: store, Businesses: store, Reviews: store, Logs: store, Provider: yc, Cache: cache,
		}),
		Queries:  app.NewQueryService(store, store, store, yc, nil, cache, time.Minute),
		Sync:     app.NewSyncEngine(yc, store, store, store, cache, app.DefaultPolicy()),
		YelpAuth: auth,
		AppURL:   "https://app.example.com",
	}
	s := New(WithRequestTimeout(cfg.timeout))
	s.MountHandlers(h)
	srv := httptest.NewServer(s.Mux())
	t.Cleanup(srv.Close)
	return &env{t: t, srv: srv, store: store, yelp: stub}
}

// client returns a cookie-keeping client that does not follow redirects.
func (e *env) client() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *env) do(c *http.Client, method, path string, body any, hdr ...string) (*http.Response, map[string]any) {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, e.srv.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := c.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func (e *env) login(email string) *http.Client {
	e.t.Helper()
	c := e.client()
	resp, body := e.do(c, http.MethodPost, "/auth/google", map[string]string{"credential": "good:" + email})
	if resp.StatusCode != http.StatusOK {
		e.t.Fatalf("login: status %d body %v", resp.StatusCode, body)
	}
	return c
}

func (e *env) createProfile(c *http.Client, p domain.ProfileInput) {
	e.t.Helper()
	if resp, body := e.do(c, http.MethodPost, "/business-profile", p); resp.StatusCode != http.StatusOK {
		e.t.Fatalf("save profile: %d %v", resp.StatusCode, body)
	}
}

func yelpConnectBody() map[string]any {
	var b map[string]any
	_ = json.Unmarshal([]byte(stubBusiness), &b)
	return map[string]any{"businessData": b}
}

// ---- tests ----

func TestStatusOf(t *testing.T) {
	cases := map[domain.Kind]int{
		domain.KindUnauthorized:        401,
		domain.KindNotFound:            404,
		domain.KindRateLimited:         429,
		domain.KindProviderUnavailable: 503,
		domain.KindVerificationFailed:  403,
		domain.KindInvalid:             400,
		domain.KindConflict:            409,
		domain.KindUnknown:             500,
	}
	for k, want := range cases {
		if got := statusOf(k); got != want {
			t.Errorf("statusOf(%s) = %d, want %d", k, got, want)
		}
	}
}

func TestWriteError_HidesUnclassified(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.New("dial tcp 10.0.0.3:3306: connection refused"))
	if rec.Code != 500 || strings.Contains(rec.Body.String(), "10.0.0.3") {
		t.Fatalf("leaked internal error: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	writeError(rec, domain.RateLimited("Rate limit exceeded. Please try again later.", "5 syncs per 24h"))
	var body errorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != 429 || body.Details != "5 syncs per 24h" {
		t.Fatalf("unexpected envelope: %d %+v", rec.Code, body)
	}
}

func TestAuth_SessionLifecycle(t *testing.T) {
	e := newEnv(t, nil)
	anon := e.client()

	if resp, body := e.do(anon, http.MethodGet, "/user", nil); resp.StatusCode != 401 || body["error"] != "Unauthorized" {
		t.Fatalf("anonymous /user: %d %v", resp.StatusCode, body)
	}
	if resp, _ := e.do(anon, http.MethodPost, "/auth/google", map[string]string{"credential": "forged"}); resp.StatusCode != 401 {
		t.Fatalf("bad credential should be 401, got %d", resp.StatusCode)
	}
	if resp, _ := e.do(anon, http.MethodPost, "/auth/google", map[string]string{}); resp.StatusCode != 400 {
		t.Fatalf("missing credential should be 400, got %d", resp.StatusCode)
	}

	c := e.login("owner@example.com")
	resp, body := e.do(c, http.MethodGet, "/user", nil)
	user, _ := body["user"].(map[string]any)
	if resp.StatusCode != 200 || user["email"] != "owner@example.com" {
		t.Fatalf("/user: %d %v", resp.StatusCode, body)
	}

	if resp, body := e.do(c, http.MethodGet, "/user/profile", nil); resp.StatusCode != 200 || body["yelpAuthorized"] != false {
		t.Fatalf("/user/profile: %d %v", resp.StatusCode, body)
	}

	if resp, _ := e.do(c, http.MethodPost, "/auth/logout", nil); resp.StatusCode != 200 {
		t.Fatalf("logout: %d", resp.StatusCode)
	}
	if resp, _ := e.do(c, http.MethodGet, "/user", nil); resp.StatusCode != 401 {
		t.Fatalf("after logout expected 401, got %d", resp.StatusCode)
	}
}

func TestBusinessProfile_CreateAndInfo(t *testing.T) {
	e := newEnv(t, nil)
	c := e.login("owner@example.com")

	if resp, body := e.do(c, http.MethodGet, "/business-profile", nil); resp.StatusCode != 200 || len(body) != 0 {
		t.Fatalf("expected empty profile, got %d %v", resp.StatusCode, body)
	}
	if resp, _ := e.do(c, http.MethodGet, "/business/info", nil); resp.StatusCode != 404 {
		t.Fatalf("info without business: %d", resp.StatusCode)
	}
	if resp, _ := e.do(c, http.MethodPost, "/business-profile", domain.ProfileInput{City: "Oakland"}); resp.StatusCode != 400 {
		t.Fatalf("nameless profile should be 400, got %d", resp.StatusCode)
	}

	e.createProfile(c, domain.ProfileInput{Name: "Acme Cafe", City: "Oakland", State: "CA", Industry: "Coffee"})
	resp, body := e.do(c, http.MethodGet, "/business/info", nil)
	if resp.StatusCode != 200 || body["name"] != "Acme Cafe" || body["industry"] != "Coffee" {
		t.Fatalf("info: %d %v", resp.StatusCode, body)
	}
}

func TestYelp_ConnectSyncListDisconnect(t *testing.T) {
	e := newEnv(t, nil)
	c := e.login("owner@example.com")
	e.createProfile(c, domain.ProfileInput{Name: "Acme Cafe", City: "San Francisco", State: "CA"})

	resp, body := e.do(c, http.MethodPost, "/business/yelp/connect", yelpConnectBody())
	biz, _ := body["business"].(map[string]any)
	if resp.StatusCode != 200 || biz["yelpId"] != "acme-cafe-sf" || biz["phone"] != "+14155550100" {
		t.Fatalf("connect: %d %v", resp.StatusCode, body)
	}

	resp, body = e.do(c, http.MethodPost, "/business/yelp/sync", nil)
	if resp.StatusCode != 200 || body["syncedReviews"] != float64(2) || body["note"] == "" {
		t.Fatalf("sync: %d %v", resp.StatusCode, body)
	}

	// cooldown
	if resp, body := e.do(c, http.MethodPost, "/business/yelp/sync", nil); resp.StatusCode != 429 {
		t.Fatalf("second sync should hit cooldown, got %d %v", resp.StatusCode, body)
	}

	resp, body = e.do(c, http.MethodGet, "/reviews?limit=1", nil)
	reviews, _ := body["reviews"].([]any)
	if resp.StatusCode != 200 || body["total"] != float64(2) || len(reviews) != 1 {
		t.Fatalf("reviews: %d %v", resp.StatusCode, body)
	}

	resp, body = e.do(c, http.MethodGet, "/business/yelp/sync/stats", nil)
	if resp.StatusCode != 200 || body["totalReviews"] != float64(120) || body["syncedCount"] != float64(2) {
		t.Fatalf("stats: %d %v", resp.StatusCode, body)
	}

	resp, body = e.do(c, http.MethodGet, "/business/yelp/preview", nil)
	sample, _ := body["reviewSample"].(map[string]any)
	if resp.StatusCode != 200 || sample["author"] != "Ana" {
		t.Fatalf("preview: %d %v", resp.StatusCode, body)
	}

	resp, body = e.do(c, http.MethodPost, "/business/yelp/disconnect", nil)
	if resp.StatusCode != 200 || body["deletedReviews"] != float64(2) {
		t.Fatalf("disconnect: %d %v", resp.StatusCode, body)
	}
	if resp, _ := e.do(c, http.MethodPost, "/business/yelp/sync", nil); resp.StatusCode != 400 {
		t.Fatalf("sync after disconnect should be 400, got %d", resp.StatusCode)
	}
}

func TestYelp_SyncQuotaExceededWithinRouteTimeout(t *testing.T) {
	// Same shape as the defaults (5 attempts doubling from 2s under a 30s route
	// timeout), scaled down so the backoff budget collides with the deadline.
	e := newEnvWith(t, nil, envConfig{attempts: 5, delay: 20 * time.Millisecond, timeout: 1300 * time.Millisecond})
	c := e.login("owner@example.com")
	e.createProfile(c, domain.ProfileInput{Name: "Acme Cafe"})
	if resp, body := e.do(c, http.MethodPost, "/business/yelp/connect", yelpConnectBody()); resp.StatusCode != 200 {
		t.Fatalf("connect: %d %v", resp.StatusCode, body)
	}
	e.yelp.throttle.Store(true)

	start := time.Now()
	resp, body := e.do(c, http.MethodPost, "/business/yelp/sync", nil)
	if resp.StatusCode != http.StatusTooManyRequests || body["error"] != "Yelp API rate limit reached" {
		t.Fatalf("sync: %d %v", resp.StatusCode, body)
	}
	if details, _ := body["details"].(string); !strings.Contains(details, "quota exceeded") {
		t.Fatalf("details should mention the quota, got %v", body)
	}
	if elapsed := time.Since(start); elapsed >= 1300*time.Millisecond {
		t.Fatalf("sync answered only after the route timeout (%s)", elapsed)
	}
	if hits := e.yelp.reviewHits.Load(); hits < 2 || hits >= 5 {
		t.Fatalf("expected backoff cut short by the deadline, got %d attempts", hits)
	}

	biz, err := e.store.GetBusinessByYelpID(context.Background(), "acme-cafe-sf")
	if err != nil {
		t.Fatal(err)
	}
	logs := e.store.SyncLogsFor(biz.ID)
	if len(logs) != 1 || logs[0].Status != domain.SyncFailure || !strings.Contains(logs[0].Error, "rate limit") {
		t.Fatalf("expected one failure log naming the rate limit, got %+v", logs)
	}
}

func TestYelp_ConnectConflict(t *testing.T) {
	e := newEnv(t, nil)
	first := e.login("first@example.com")
	e.createProfile(first, domain.ProfileInput{Name: "Acme Cafe"})
	if resp, _ := e.do(first, http.MethodPost, "/business/yelp/connect", yelpConnectBody()); resp.StatusCode != 200 {
		t.Fatalf("first connect: %d", resp.StatusCode)
	}

	second := e.login("second@example.com")
	e.createProfile(second, domain.ProfileInput{Name: "Impostor"})
	if resp, body := e.do(second, http.MethodPost, "/business/yelp/connect", yelpConnectBody()); resp.StatusCode != 409 {
		t.Fatalf("expected 409, got %d %v", resp.StatusCode, body)
	}
}

func TestYelp_Verify(t *testing.T) {
	e := newEnv(t, nil)
	c := e.login("owner@example.com")
	e.createProfile(c, domain.ProfileInput{Name: "Acme Cafe", Phone: "+1 (415) 555-0100"})

	resp, body := e.do(c, http.MethodPost, "/business/yelp/verify", map[string]string{
		"businessId": "acme-cafe-sf", "businessUrl": "https://www.yelp.com/biz/acme-cafe-sf/",
	})
	if resp.StatusCode != 200 || body["verified"] != true || body["message"] != "Business verification successful via URL match" {
		t.Fatalf("verify by url: %d %v", resp.StatusCode, body)
	}

	resp, body = e.do(c, http.MethodPost, "/business/yelp/verify", map[string]string{
		"businessId": "acme-cafe-sf", "businessUrl": "https://www.yelp.com/biz/someone-else",
	})
	if resp.StatusCode != 200 || body["message"] != "Business verification successful via phone number match" {
		t.Fatalf("verify by phone: %d %v", resp.StatusCode, body)
	}

	e.createProfile(c, domain.ProfileInput{Name: "Acme Cafe", Phone: "+1 212 555 0199"})
	resp, body = e.do(c, http.MethodPost, "/business/yelp/verify", map[string]string{
		"businessId": "acme-cafe-sf", "businessUrl": "https://www.yelp.com/biz/someone-else",
	})
	if resp.StatusCode != 403 || !strings.Contains(body["details"].(string), "phone number match") {
		t.Fatalf("expected 403 with attempted methods, got %d %v", resp.StatusCode, body)
	}

	if resp, _ := e.do(c, http.MethodPost, "/business/yelp/verify", map[string]string{"businessId": "acme-cafe-sf"}); resp.StatusCode != 400 {
		t.Fatalf("missing url should be 400, got %d", resp.StatusCode)
	}
}

func TestYelp_SearchLocationFallback(t *testing.T) {
	e := newEnv(t, nil)
	c := e.login("owner@example.com")

	e.do(c, http.MethodGet, "/business/yelp/search?term=cafe", nil, "cf-ipcity", "Oakland", "cf-region", "CA")
	if got := e.yelp.location(); got != "Oakland, CA" {
		t.Fatalf("geo header fallback: %q", got)
	}
	e.do(c, http.MethodGet, "/business/yelp/search?term=cafe", nil)
	if got := e.yelp.location(); got != defaultLocation {
		t.Fatalf("default fallback: %q", got)
	}

	e.createProfile(c, domain.ProfileInput{Name: "Acme Cafe", City: "Berkeley", State: "CA"})
	resp, body := e.do(c, http.MethodGet, "/business/yelp/search?term=cafe", nil, "cf-ipcity", "Oakland")
	if got := e.yelp.location(); got != "Berkeley, CA" {
		t.Fatalf("business location should win, got %q", got)
	}
	if list, _ := body["businesses"].([]any); resp.StatusCode != 200 || len(list) != 1 {
		t.Fatalf("search: %d %v", resp.StatusCode, body)
	}
}

func TestReviews_BadPaging(t *testing.T) {
	e := newEnv(t, nil)
	c := e.login("owner@example.com")
	e.createProfile(c, domain.ProfileInput{Name: "Acme Cafe"})

	for _, q := range []string{"limit=0", "limit=101", "limit=abc", "page=0"} {
		if resp, _ := e.do(c, http.MethodGet, "/reviews?"+q, nil); resp.StatusCode != 400 {
			t.Errorf("%s: expected 400, got %d", q, resp.StatusCode)
		}
	}
	resp, body := e.do(c, http.MethodGet, "/reviews", nil)
	if resp.StatusCode != 200 || body["limit"] != float64(10) || body["page"] != float64(1) {
		t.Fatalf("defaults: %d %v", resp.StatusCode, body)
	}
}

func TestAnalyze_Unconfigured(t *testing.T) {
	e := newEnv(t, nil)
	c := e.login("owner@example.com")
	e.createProfile(c, domain.ProfileInput{Name: "Acme Cafe"})
	if resp, _ := e.do(c, http.MethodGet, "/reviews/analyze", nil); resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestYelpOAuth(t *testing.T) {
	e := newEnv(t, nil)
	c := e.login("owner@example.com")
	if resp, _ := e.do(c, http.MethodGet, "/business/yelp/oauth", nil); resp.StatusCode != 503 {
		t.Fatalf("unconfigured oauth should be 503, got %d", resp.StatusCode)
	}

	e = newEnv(t, fakeAuthorizer{})
	c = e.login("owner@example.com")
	resp, _ := e.do(c, http.MethodGet, "/business/yelp/oauth", nil)
	loc := resp.Header.Get("Location")
	if resp.StatusCode != http.StatusFound || !strings.Contains(loc, "state=") {
		t.Fatalf("oauth start: %d %q", resp.StatusCode, loc)
	}

	resp, _ = e.do(c, http.MethodGet, "/business/yelp/callback?code=x&state=wrong", nil)
	if got := resp.Header.Get("Location"); got != "https://app.example.com/dashboard?yelp=error" {
		t.Fatalf("state mismatch redirect: %q", got)
	}
}
