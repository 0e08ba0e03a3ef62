package httpserver

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"reviewdesk/internal/domain"
)

type staticResolver map[string]*domain.Identity

func (s staticResolver) Resolve(ctx context.Context, token string) (*domain.Identity, bool) {
	id, ok := s[token]
	return id, ok
}

func TestRequireSession(t *testing.T) {
	res := staticResolver{"tok": {ID: "u1", Email: "a@example.com"}}
	var seen *domain.Identity
	h := RequireSession(res)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFrom(r.Context())
	}))

	for _, c := range []struct {
		name   string
		cookie string
		want   int
	}{
		{"no cookie", "", http.StatusUnauthorized},
		{"unknown token", "nope", http.StatusUnauthorized},
		{"valid", "tok", http.StatusOK},
	} {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/user", nil)
		if c.cookie != "" {
			req.AddCookie(&http.Cookie{Name: sessionCookie, Value: c.cookie})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Errorf("%s: status %d, want %d", c.name, rec.Code, c.want)
		}
		if c.want == http.StatusOK && (seen == nil || seen.ID != "u1") {
			t.Errorf("%s: identity not on context: %+v", c.name, seen)
		}
		if c.want != http.StatusOK && !strings.Contains(rec.Body.String(), `"Unauthorized"`) {
			t.Errorf("%s: unexpected body %s", c.name, rec.Body.String())
		}
	}
}

func TestInstrument_LogsStatusAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	h := Instrument(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"status":418`, `"bytes":15`, `"route":"unmatched"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %s missing %s", out, want)
		}
	}
}

func TestRouter_UnknownRoutesAnswerJSON(t *testing.T) {
	s := New()
	s.mux.Get("/only-get", func(w http.ResponseWriter, r *http.Request) {})

	for _, c := range []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodPost, "/only-get", http.StatusMethodNotAllowed},
	} {
		rr := httptest.NewRecorder()
		s.Mux().ServeHTTP(rr, httptest.NewRequest(c.method, c.path, nil))
		if rr.Code != c.want {
			t.Errorf("%s %s: status %d, want %d", c.method, c.path, rr.Code, c.want)
		}
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Errorf("%s %s: content type %q", c.method, c.path, ct)
		}
	}
}
