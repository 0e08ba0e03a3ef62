// internal/adapters/yelp/client.go
package yelp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"reviewdesk/internal/adapters/observability"
	"reviewdesk/internal/domain"
	"reviewdesk/internal/shared"
)

const DefaultBaseURL = "https://api.yelp.com/v3"

// Config is passed explicitly; the client keeps no process-wide state.
type Config struct {
	BaseURL     string
	APIKey      string
	RPS         int
	MaxAttempts int           // total attempts on HTTP 429, including the first
	BaseDelay   time.Duration // first backoff delay, doubled per attempt
	Timeout     time.Duration
}

type Client struct {
	base        string
	hc          *http.Client
	key         string
	rl          *rate.Limiter
	maxAttempts int
	baseDelay   time.Duration
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("yelp API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Client{
		base:        strings.TrimRight(cfg.BaseURL, "/"),
		hc:          &http.Client{Timeout: cfg.Timeout},
		key:         cfg.APIKey,
		rl:          rate.NewLimiter(rate.Limit(cfg.RPS), cfg.RPS),
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
	}, nil
}

// ---- wire types ----

type location struct {
	Address1 string `json:"address1"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zip_code"`
	Country  string `json:"country"`
}

type business struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Rating       float64  `json:"rating"`
	ReviewCount  int      `json:"review_count"`
	URL          string   `json:"url"`
	Phone        string   `json:"phone"`
	DisplayPhone string   `json:"display_phone"`
	Location     location `json:"location"`
	Photos       []string `json:"photos"`
}

func (b business) toDomain() domain.ExternalBusiness {
	return domain.ExternalBusiness{
		ID:           b.ID,
		Name:         b.Name,
		Rating:       b.Rating,
		ReviewCount:  b.ReviewCount,
		URL:          b.URL,
		Phone:        b.Phone,
		DisplayPhone: b.DisplayPhone,
		Address1:     b.Location.Address1,
		City:         b.Location.City,
		State:        b.Location.State,
		ZipCode:      b.Location.ZipCode,
		Country:      b.Location.Country,
		Photos:       b.Photos,
	}
}

type review struct {
	ID          string `json:"id"`
	Rating      int    `json:"rating"`
	Text        string `json:"text"`
	TimeCreated string `json:"time_created"`
	URL         string `json:"url"`
	User        struct {
		Name string `json:"name"`
	} `json:"user"`
}

type apiError struct {
	Error *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// ---- public API ----

func (c *Client) SearchBusinesses(ctx context.Context, term, loc string, limit int) ([]domain.ExternalBusiness, error) {
	q := url.Values{}
	if term != "" {
		q.Set("term", term)
	}
	q.Set("location", loc)
	q.Set("sort_by", "best_match")
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var out struct {
		Businesses []business `json:"businesses"`
	}
	if err := c.get(ctx, "search", c.base+"/businesses/search?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	res := make([]domain.ExternalBusiness, 0, len(out.Businesses))
	for _, b := range out.Businesses {
		res = append(res, b.toDomain())
	}
	return res, nil
}

func (c *Client) GetBusiness(ctx context.Context, id string) (domain.ExternalBusiness, error) {
	var out business
	if err := c.get(ctx, "business", c.base+"/businesses/"+url.PathEscape(id), &out); err != nil {
		return domain.ExternalBusiness{}, err
	}
	if out.ID == "" || out.URL == "" {
		return domain.ExternalBusiness{}, domain.ProviderUnavailable("Invalid business data received from Yelp", "", nil)
	}
	return out.toDomain(), nil
}

// GetReviews returns the most recent reviews. Yelp caps this at 3 regardless of the total count.
func (c *Client) GetReviews(ctx context.Context, businessID string) ([]domain.ExternalReview, error) {
	var out struct {
		Reviews []review `json:"reviews"`
	}
	u := c.base + "/businesses/" + url.PathEscape(businessID) + "/reviews?sort_by=newest"
	if err := c.get(ctx, "reviews", u, &out); err != nil {
		return nil, err
	}
	res := make([]domain.ExternalReview, 0, len(out.Reviews))
	for _, r := range out.Reviews {
		res = append(res, domain.ExternalReview{
			ID:          r.ID,
			Rating:      r.Rating,
			Text:        r.Text,
			AuthorName:  r.User.Name,
			TimeCreated: r.TimeCreated,
			URL:         r.URL,
		})
	}
	return res, nil
}

// ---- internals ----

var errThrottled = errors.New("yelp: 429 too many requests")

// get performs a GET with client-side rate limiting and JSON decode into out.
// HTTP 429 is retried with doubling delays, never past the context deadline;
// everything else fails fast.
func (c *Client) get(ctx context.Context, endpoint, u string, out any) error {
	attempts := 0
	throttled := false
	op := func() error {
		if err := c.rl.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		err := c.do(ctx, endpoint, u, out)
		throttled = errors.Is(err, errThrottled)
		if throttled {
			log.Debug().Str("endpoint", endpoint).Int("attempt", attempts).Msg("yelp throttled, backing off")
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	err := backoff.Retry(op, shared.RetryPolicy(ctx, c.baseDelay, c.maxAttempts))
	switch {
	case err == nil:
		return nil
	case domain.KindOf(err) != domain.KindUnknown:
		return err
	case errors.Is(err, context.Canceled):
		return err
	case throttled:
		// the 429s ran out, or the deadline cut the backoff short
		return domain.RateLimited("Yelp API rate limit reached",
			fmt.Sprintf("quota exceeded after %d attempts, please try again later", attempts))
	}
	return domain.ProviderUnavailable("Yelp API did not respond in time",
		"The Yelp API is currently unavailable. Please try again later.", err)
}

func (c *Client) do(ctx context.Context, endpoint, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "reviewdesk/1.0")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("yelp", endpoint, 0, time.Since(start))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.ProviderUnavailable("Failed to reach Yelp",
			"The Yelp API is currently unavailable. Please try again later.", err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("yelp", endpoint, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.ProviderUnavailable("Malformed response from Yelp", "", err)
		}
		return nil
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusTooManyRequests {
		// the daily quota also comes back as 429; retrying it is pointless
		if isAccessLimit(b) {
			return classify(resp.StatusCode, b)
		}
		return errThrottled
	}
	return classify(resp.StatusCode, b)
}

func isAccessLimit(body []byte) bool {
	var ae apiError
	return json.Unmarshal(body, &ae) == nil && ae.Error != nil && ae.Error.Code == "ACCESS_LIMIT_REACHED"
}

// classify maps a non-2xx, non-429 response to an error kind. A body that is not
// Yelp's error envelope skips the quota check and is reported as unavailable.
func classify(status int, body []byte) error {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Error != nil {
		if ae.Error.Code == "ACCESS_LIMIT_REACHED" {
			return domain.RateLimited("Yelp API rate limit reached", "Please try again in a few hours")
		}
		if status == http.StatusNotFound {
			return domain.NotFound("Business not found on Yelp")
		}
		return domain.ProviderUnavailable("Failed to fetch data from Yelp", ae.Error.Description,
			fmt.Errorf("yelp %d %s", status, ae.Error.Code))
	}
	if status == http.StatusNotFound {
		return domain.NotFound("Business not found on Yelp")
	}
	return domain.ProviderUnavailable("Failed to fetch data from Yelp",
		"The Yelp API is currently unavailable. Please try again later.",
		fmt.Errorf("yelp %d: %s", status, strings.TrimSpace(string(body))))
}
