package yelp

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://www.yelp.com/oauth2/authorize",
	TokenURL:  "https://api.yelp.com/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// OAuth runs the authorization-code flow used to link a Yelp business account.
type OAuth struct{ cfg *oauth2.Config }

func NewOAuth(clientID, clientSecret, appURL string) *OAuth {
	return &OAuth{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     Endpoint,
		RedirectURL:  appURL + "/business/yelp/callback",
		Scopes:       []string{"r2r_business_owner"},
	}}
}

func (o *OAuth) Enabled() bool { return o.cfg.ClientID != "" && o.cfg.ClientSecret != "" }

func (o *OAuth) AuthCodeURL(state string) string { return o.cfg.AuthCodeURL(state) }

// Exchange trades an authorization code for an access token and its expiry.
func (o *OAuth) Exchange(ctx context.Context, code string) (string, time.Time, error) {
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	exp := tok.Expiry
	if exp.IsZero() {
		exp = time.Now().Add(24 * time.Hour)
	}
	return tok.AccessToken, exp, nil
}
