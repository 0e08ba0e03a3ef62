package yelp_test

import (
	"net/url"
	"testing"

	"reviewdesk/internal/adapters/yelp"
)

func TestOAuth_AuthCodeURL(t *testing.T) {
	o := yelp.NewOAuth("cid", "secret", "https://app.example.com")
	if !o.Enabled() {
		t.Fatal("expected enabled with id and secret")
	}
	u, err := url.Parse(o.AuthCodeURL("st-1"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "st-1" || q.Get("client_id") != "cid" ||
		q.Get("redirect_uri") != "https://app.example.com/business/yelp/callback" {
		t.Fatalf("unexpected authorize url %s", u)
	}
	if yelp.NewOAuth("", "", "x").Enabled() {
		t.Fatal("expected disabled without credentials")
	}
}
