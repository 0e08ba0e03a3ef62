package app

import (
	"fmt"
	"strings"
	"time"

	"reviewdesk/internal/domain"
)

/********** tiny helpers **********/

func ptrStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, sep)
}

// fillUnset copies src into *dst only when *dst is empty.
func fillUnset(dst *string, src string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = strings.TrimSpace(src)
	}
}

/********** reviews mapper **********/

// mapExternalReview turns a provider review into a stored Review. Reviews with no
// id, an unparsable timestamp or a rating outside 1..5 are rejected.
func mapExternalReview(businessID string, er domain.ExternalReview, syncedAt time.Time) (domain.Review, error) {
	if er.ID == "" {
		return domain.Review{}, fmt.Errorf("review has no id")
	}
	if er.Rating < 1 || er.Rating > 5 {
		return domain.Review{}, fmt.Errorf("rating %d out of range", er.Rating)
	}
	at, err := time.Parse(yelpTimeLayout, er.TimeCreated)
	if err != nil {
		return domain.Review{}, fmt.Errorf("parse time_created %q: %w", er.TimeCreated, err)
	}
	synced := syncedAt.UTC()
	return domain.Review{
		BusinessID:     businessID,
		Source:         domain.SourceYelp,
		SourceReviewID: ptrStr(er.ID),
		Rating:         er.Rating,
		Text:           er.Text,
		AuthorName:     er.AuthorName,
		ReviewDate:     at.UTC(),
		SourceURL:      er.URL,
		LastSynced:     &synced,
	}, nil
}

/********** business mappers **********/

// fillFromYelp fills only the identity fields the owner has not set yet.
func fillFromYelp(b *domain.Business, y domain.ExternalBusiness) {
	fillUnset(&b.Name, y.Name)
	fillUnset(&b.Phone, firstNonEmpty(y.Phone, y.DisplayPhone))
	fillUnset(&b.Address, joinNonEmpty(", ", y.Address1, y.City, joinNonEmpty(" ", y.State, y.ZipCode)))
	fillUnset(&b.City, y.City)
	fillUnset(&b.State, y.State)
	fillUnset(&b.ZipCode, y.ZipCode)
	fillUnset(&b.Country, y.Country)
	fillUnset(&b.Website, y.URL)
}

func yelpLink(y domain.ExternalBusiness, syncedAt *time.Time) domain.YelpLink {
	return domain.YelpLink{
		YelpID:       y.ID,
		URL:          y.URL,
		Rating:       y.Rating,
		ReviewCount:  y.ReviewCount,
		LastYelpSync: syncedAt,
	}
}

// applyPlace copies Places details over the stored identity. Empty values never
// erase what the owner already entered.
func applyPlace(b *domain.Business, p domain.GooglePlace) {
	if p.Name != "" {
		b.Name = p.Name
	}
	if p.Address != "" {
		b.Address = p.Address
	}
	if p.Phone != "" {
		b.Phone = p.Phone
	}
	if p.Website != "" {
		b.Website = p.Website
	}
}

func profileOf(b domain.Business) domain.ProfileInput {
	return domain.ProfileInput{
		Name:        b.Name,
		Description: b.Description,
		Industry:    b.Industry,
		Address:     b.Address,
		City:        b.City,
		State:       b.State,
		ZipCode:     b.ZipCode,
		Country:     b.Country,
		Phone:       b.Phone,
		Website:     b.Website,
	}
}

// searchLocation builds the provider "location" parameter for a business.
func searchLocation(b domain.Business) string {
	return joinNonEmpty(", ", b.City, b.State)
}
