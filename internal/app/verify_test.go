package app_test

import (
	"strings"
	"testing"

	"reviewdesk/internal/app"
	"reviewdesk/internal/domain"
)

func TestVerify_URLIgnoresQueryString(t *testing.T) {
	stored := domain.Business{Website: "https://yelp.com/biz/foo?osq=x"}
	claimed := domain.ExternalBusiness{URL: "https://yelp.com/biz/foo", Phone: "415-555-1212"}

	v, err := app.Verify(stored, claimed, "")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !v.Verified || len(v.Methods) != 1 || v.Methods[0] != app.MethodURL {
		t.Fatalf("unexpected verification: %+v", v)
	}
}

func TestVerify_SubmittedURLWins(t *testing.T) {
	claimed := domain.ExternalBusiness{URL: "https://www.yelp.com/biz/acme-sf"}
	v, err := app.Verify(domain.Business{}, claimed, "https://www.yelp.com/biz/acme-sf/?utm=share")
	if err != nil || !v.Verified {
		t.Fatalf("expected URL match, got %+v err=%v", v, err)
	}
}

func TestVerify_NoMatch(t *testing.T) {
	stored := domain.Business{Phone: "4155551212", Address: "123 Main St"}
	claimed := domain.ExternalBusiness{URL: "https://yelp.com/biz/bar", Phone: "9998887777", Address1: "456 Other Ave"}

	v, err := app.Verify(stored, claimed, "")
	if v.Verified {
		t.Fatalf("expected not verified: %+v", v)
	}
	if domain.KindOf(err) != domain.KindVerificationFailed {
		t.Fatalf("expected verification failure, got %v", err)
	}
	e, _ := domain.AsError(err)
	if !strings.Contains(e.Details, app.MethodPhone) || !strings.Contains(e.Details, app.MethodAddress) {
		t.Fatalf("details should list attempted methods: %q", e.Details)
	}
}

func TestVerify_PhoneDigitsOnly(t *testing.T) {
	stored := domain.Business{Phone: "(415) 555-1212"}
	claimed := domain.ExternalBusiness{URL: "https://yelp.com/biz/x", Phone: "+1415-555-1212"}

	// +1 prefix leaves an extra digit, so phone alone does not match
	if v, _ := app.Verify(stored, claimed, "https://example.com"); v.Verified {
		t.Fatalf("unexpected match: %+v", v)
	}
	claimed.Phone = "415.555.1212"
	v, err := app.Verify(stored, claimed, "https://example.com")
	if err != nil || v.Methods[0] != app.MethodPhone {
		t.Fatalf("expected phone match, got %+v err=%v", v, err)
	}
}

func TestVerify_AddressContainment(t *testing.T) {
	stored := domain.Business{Address: "123 Main St., Suite 4, San Francisco"}
	claimed := domain.ExternalBusiness{Address1: "123 Main St"}

	v, err := app.Verify(stored, claimed, "")
	if err != nil || !v.Verified || v.Methods[0] != app.MethodAddress {
		t.Fatalf("expected address match, got %+v err=%v", v, err)
	}
	if v.Message() != "Business verification successful via address match" {
		t.Fatalf("message = %q", v.Message())
	}
}

func TestVerify_FirstMatchWins(t *testing.T) {
	stored := domain.Business{Website: "https://yelp.com/biz/foo", Phone: "4155551212"}
	claimed := domain.ExternalBusiness{URL: "https://yelp.com/biz/foo", Phone: "4155551212"}
	v, _ := app.Verify(stored, claimed, "")
	if len(v.Methods) != 1 || v.Methods[0] != app.MethodURL {
		t.Fatalf("expected only URL match, got %v", v.Methods)
	}
}
