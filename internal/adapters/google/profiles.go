// internal/adapters/google/profiles.go
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/mybusinessaccountmanagement/v1"
	"google.golang.org/api/mybusinessbusinessinformation/v1"
	"google.golang.org/api/option"

	"reviewdesk/internal/adapters/observability"
	"reviewdesk/internal/domain"
	"reviewdesk/internal/shared"
)

const (
	DefaultPlacesBase = "https://maps.googleapis.com/maps/api/place"
	businessScope     = "https://www.googleapis.com/auth/business.manage"
	locationReadMask  = "name,title,storefrontAddress,phoneNumbers,websiteUri,metadata"
)

type Config struct {
	ClientID     string
	ClientSecret string
	PlacesKey    string
	PlacesBase   string
	// Endpoint overrides; empty means Google production.
	TokenURL         string
	AccountsEndpoint string
	InfoEndpoint     string
	MaxAttempts      int
	BaseDelay        time.Duration
	Timeout          time.Duration
}

// Profiles reads Google Places details and Business Profile locations.
type Profiles struct {
	cfg   Config
	hc    *http.Client
	oauth *oauth2.Config
}

func New(cfg Config) *Profiles {
	if cfg.PlacesBase == "" {
		cfg.PlacesBase = DefaultPlacesBase
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
	ep := oauthgoogle.Endpoint
	if cfg.TokenURL != "" {
		ep.TokenURL = cfg.TokenURL
	}
	return &Profiles{
		cfg: cfg,
		hc:  &http.Client{Timeout: cfg.Timeout},
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     ep,
			// popup sign-in hands the code over via postMessage
			RedirectURL: "postmessage",
			Scopes:      []string{businessScope},
		},
	}
}

// ---- Places ----

type placeDetails struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Result       struct {
		PlaceID          string `json:"place_id"`
		Name             string `json:"name"`
		FormattedAddress string `json:"formatted_address"`
		Phone            string `json:"formatted_phone_number"`
		Website          string `json:"website"`
		URL              string `json:"url"`
	} `json:"result"`
}

func (p *Profiles) PlaceDetails(ctx context.Context, placeID string) (domain.GooglePlace, error) {
	if p.cfg.PlacesKey == "" {
		return domain.GooglePlace{}, domain.ProviderUnavailable("Google Places is not configured", "", nil)
	}
	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("fields", "place_id,name,formatted_address,formatted_phone_number,website,url")
	q.Set("key", p.cfg.PlacesKey)
	u := strings.TrimRight(p.cfg.PlacesBase, "/") + "/details/json?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.GooglePlace{}, err
	}
	start := time.Now()
	resp, err := p.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("google", "place_details", 0, time.Since(start))
		return domain.GooglePlace{}, domain.ProviderUnavailable("Failed to fetch business details from Google", "", err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("google", "place_details", resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return domain.GooglePlace{}, domain.ProviderUnavailable("Failed to fetch business details from Google", "",
			fmt.Errorf("places %d", resp.StatusCode))
	}
	var out placeDetails
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.GooglePlace{}, domain.ProviderUnavailable("Malformed response from Google", "", err)
	}
	switch out.Status {
	case "OK":
	case "NOT_FOUND", "ZERO_RESULTS", "INVALID_REQUEST":
		return domain.GooglePlace{}, domain.NotFound("Place not found on Google")
	case "OVER_QUERY_LIMIT":
		return domain.GooglePlace{}, domain.RateLimited("API_QUOTA_EXCEEDED", "Please try again in a few minutes")
	default:
		return domain.GooglePlace{}, domain.ProviderUnavailable("Failed to fetch business details from Google", out.ErrorMessage,
			fmt.Errorf("places status %s", out.Status))
	}
	r := out.Result
	return domain.GooglePlace{
		PlaceID: firstNonEmpty(r.PlaceID, placeID),
		Name:    r.Name,
		Address: r.FormattedAddress,
		Phone:   r.Phone,
		Website: r.Website,
		URL:     r.URL,
	}, nil
}

// ---- Business Profile ----

// LocationFromCode exchanges a sign-in code and returns the first location of the
// first Business Profile account.
func (p *Profiles) LocationFromCode(ctx context.Context, code string) (domain.GooglePlace, error) {
	if p.cfg.ClientID == "" || p.cfg.ClientSecret == "" {
		return domain.GooglePlace{}, domain.ProviderUnavailable("Google OAuth is not configured", "", nil)
	}
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return domain.GooglePlace{}, &domain.Error{Kind: domain.KindUnauthorized, Msg: "Failed to exchange Google authorization code", Err: err}
	}
	opts := []option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(tok))}

	accSvc, err := mybusinessaccountmanagement.NewService(ctx, p.withEndpoint(opts, p.cfg.AccountsEndpoint)...)
	if err != nil {
		return domain.GooglePlace{}, fmt.Errorf("account management client: %w", err)
	}
	infoSvc, err := mybusinessbusinessinformation.NewService(ctx, p.withEndpoint(opts, p.cfg.InfoEndpoint)...)
	if err != nil {
		return domain.GooglePlace{}, fmt.Errorf("business information client: %w", err)
	}

	var accounts *mybusinessaccountmanagement.ListAccountsResponse
	err = p.retry(ctx, "accounts", func() error {
		var e error
		accounts, e = accSvc.Accounts.List().Context(ctx).Do()
		return e
	})
	if err != nil {
		return domain.GooglePlace{}, err
	}
	if accounts == nil || len(accounts.Accounts) == 0 {
		return domain.GooglePlace{}, &domain.Error{Kind: domain.KindNotFound, Msg: "NO_BUSINESS_PROFILE",
			Details: "No business profile found for this account"}
	}
	acct := accounts.Accounts[0]

	var locs *mybusinessbusinessinformation.ListLocationsResponse
	err = p.retry(ctx, "locations", func() error {
		var e error
		locs, e = infoSvc.Accounts.Locations.List(acct.Name).ReadMask(locationReadMask).Context(ctx).Do()
		return e
	})
	if err != nil {
		return domain.GooglePlace{}, err
	}
	if locs == nil || len(locs.Locations) == 0 {
		return domain.GooglePlace{}, &domain.Error{Kind: domain.KindNotFound, Msg: "NO_BUSINESS_LOCATIONS",
			Details: "No business locations found for this account"}
	}
	return placeFromLocation(locs.Locations[0]), nil
}

func (p *Profiles) withEndpoint(opts []option.ClientOption, endpoint string) []option.ClientOption {
	if endpoint == "" {
		return opts
	}
	return append(append([]option.ClientOption{}, opts...), option.WithEndpoint(endpoint))
}

// retry runs op with doubling delays while Google answers 429, stopping short of
// the context deadline.
func (p *Profiles) retry(ctx context.Context, endpoint string, op func() error) error {
	attempts := 0
	throttled := false
	wrapped := func() error {
		attempts++
		start := time.Now()
		err := op()
		status := http.StatusOK
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			status = gerr.Code
		} else if err != nil {
			status = 0
		}
		observability.ObserveExternal("google", endpoint, status, time.Since(start))
		throttled = status == http.StatusTooManyRequests
		if throttled {
			log.Debug().Str("endpoint", endpoint).Int("attempt", attempts).Msg("google throttled, backing off")
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	err := backoff.Retry(wrapped, shared.RetryPolicy(ctx, p.cfg.BaseDelay, p.cfg.MaxAttempts))
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case throttled:
		return domain.RateLimited("API_QUOTA_EXCEEDED", "Please try again in a few minutes")
	case errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden):
		return &domain.Error{Kind: domain.KindUnauthorized, Msg: "Google rejected the access token", Err: err}
	}
	return domain.ProviderUnavailable("Failed to connect Google Business Profile", "", err)
}

func placeFromLocation(l *mybusinessbusinessinformation.Location) domain.GooglePlace {
	out := domain.GooglePlace{Name: l.Title, Website: l.WebsiteUri}
	if a := l.StorefrontAddress; a != nil {
		out.Address = strings.Join(nonEmpty(append(append([]string{}, a.AddressLines...), a.Locality, a.AdministrativeArea, a.PostalCode)), ", ")
	}
	if l.PhoneNumbers != nil {
		out.Phone = l.PhoneNumbers.PrimaryPhone
	}
	if l.Metadata != nil {
		out.PlaceID = l.Metadata.PlaceId
		out.URL = l.Metadata.MapsUri
	}
	return out
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
