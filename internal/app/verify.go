package app

import (
	"regexp"
	"strings"

	"reviewdesk/internal/domain"
)

const (
	MethodURL     = "URL match"
	MethodPhone   = "phone number match"
	MethodAddress = "address match"
)

type Verification struct {
	Verified  bool
	Methods   []string
	Attempted []string
}

// Message renders the success text shown to the owner.
func (v Verification) Message() string {
	return "Business verification successful via " + strings.Join(v.Methods, " and ")
}

var (
	nonDigit = regexp.MustCompile(`\D`)
	nonWord  = regexp.MustCompile(`[^\w\s]`)
)

func normalizeURL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return strings.TrimSuffix(u, "/")
}

func normalizePhone(p string) string { return nonDigit.ReplaceAllString(p, "") }

func normalizeAddress(a string) string { return nonWord.ReplaceAllString(strings.ToLower(a), "") }

// Verify decides whether the caller owns the claimed provider listing. Checks run
// in order URL, phone, address and stop at the first match. claimedURL falls back
// to the stored website when empty.
func Verify(stored domain.Business, claimed domain.ExternalBusiness, claimedURL string) (Verification, error) {
	var v Verification

	if claimedURL == "" {
		claimedURL = stored.Website
	}
	if claimed.URL != "" && claimedURL != "" {
		v.Attempted = append(v.Attempted, MethodURL)
		if normalizeURL(claimed.URL) == normalizeURL(claimedURL) {
			v.Verified = true
			v.Methods = append(v.Methods, MethodURL)
		}
	}

	if !v.Verified && stored.Phone != "" && claimed.Phone != "" {
		v.Attempted = append(v.Attempted, MethodPhone)
		a, b := normalizePhone(stored.Phone), normalizePhone(claimed.Phone)
		if a != "" && a == b {
			v.Verified = true
			v.Methods = append(v.Methods, MethodPhone)
		}
	}

	if !v.Verified && stored.Address != "" && claimed.Address1 != "" {
		v.Attempted = append(v.Attempted, MethodAddress)
		a, b := normalizeAddress(stored.Address), normalizeAddress(claimed.Address1)
		if a != "" && b != "" && (strings.Contains(a, b) || strings.Contains(b, a)) {
			v.Verified = true
			v.Methods = append(v.Methods, MethodAddress)
		}
	}

	if !v.Verified {
		details := "We attempt to verify ownership through matching URLs, phone numbers, or addresses."
		if len(v.Attempted) > 0 {
			details += " Attempted: " + strings.Join(v.Attempted, ", ") + "."
		}
		return v, domain.VerificationFailed(
			"Unable to verify business ownership. Please ensure you have claimed this business on Yelp and that your business details match your Yelp listing.",
			details)
	}
	return v, nil
}
