package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"reviewdesk/internal/domain"
)

// TokenBox encrypts provider tokens before they are stored.
type TokenBox interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

// CodeExchanger trades an OAuth authorization code for an access token.
type CodeExchanger interface {
	Exchange(ctx context.Context, code string) (string, time.Time, error)
}

// BusinessService owns the business profile and its provider linkage.
type BusinessService struct {
	users      domain.UserRepository
	businesses domain.BusinessRepository
	reviews    domain.ReviewRepository
	logs       domain.SyncLogRepository
	provider   domain.ReviewProvider
	google     domain.GoogleProfiles
	yelpOAuth  CodeExchanger
	box        TokenBox
	cache      domain.Cache
	now        func() time.Time
}

type BusinessDeps struct {
	Users      domain.UserRepository
	Businesses domain.BusinessRepository
	Reviews    domain.ReviewRepository
	Logs       domain.SyncLogRepository
	Provider   domain.ReviewProvider
	Google     domain.GoogleProfiles
	YelpOAuth  CodeExchanger
	Box        TokenBox
	Cache      domain.Cache
}

func NewBusinessService(d BusinessDeps) *BusinessService {
	return &BusinessService{
		users:      d.Users,
		businesses: d.Businesses,
		reviews:    d.Reviews,
		logs:       d.Logs,
		provider:   d.Provider,
		google:     d.Google,
		yelpOAuth:  d.YelpOAuth,
		box:        d.Box,
		cache:      d.Cache,
		now:        time.Now,
	}
}

var errNoBusiness = domain.NotFound("No business found for authenticated user. Please create a business profile first.")

func (s *BusinessService) yelp() (domain.ReviewProvider, error) {
	if s.provider == nil {
		return nil, domain.ProviderUnavailable("Yelp API is not configured", "", nil)
	}
	return s.provider, nil
}

// Business loads the caller's business or a NotFound error.
func (s *BusinessService) Business(ctx context.Context, ownerID string) (domain.Business, error) {
	b, err := s.businesses.GetBusinessByOwner(ctx, ownerID)
	if domain.IsNotFound(err) {
		return domain.Business{}, errNoBusiness
	}
	return b, err
}

// Profile returns the caller's business; ok is false when none exists yet.
func (s *BusinessService) Profile(ctx context.Context, ownerID string) (domain.Business, bool, error) {
	b, err := s.businesses.GetBusinessByOwner(ctx, ownerID)
	if domain.IsNotFound(err) {
		return domain.Business{}, false, nil
	}
	if err != nil {
		return domain.Business{}, false, err
	}
	return b, true, nil
}

func (s *BusinessService) SaveProfile(ctx context.Context, ownerID string, p domain.ProfileInput) (domain.Business, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return domain.Business{}, domain.Invalid("Business name is required")
	}
	return s.businesses.UpsertProfile(ctx, ownerID, p)
}

// UserProfile is the stored user without any token material.
type UserProfile struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Image          string     `json:"image"`
	Phone          string     `json:"phone"`
	Role           string     `json:"role"`
	YelpAuthorized bool       `json:"yelpAuthorized"`
	LastLoginAt    *time.Time `json:"lastLoginAt"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func (s *BusinessService) UserProfile(ctx context.Context, userID string) (UserProfile, error) {
	u, err := s.users.GetUser(ctx, userID)
	if domain.IsNotFound(err) {
		return UserProfile{}, domain.NotFound("User not found")
	}
	if err != nil {
		return UserProfile{}, err
	}
	return UserProfile{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Image:          u.Image,
		Phone:          u.Phone,
		Role:           u.Role,
		YelpAuthorized: s.yelpTokenValid(u),
		LastLoginAt:    u.LastLoginAt,
		CreatedAt:      u.CreatedAt,
	}, nil
}

func (s *BusinessService) yelpTokenValid(u domain.User) bool {
	if s.box == nil || u.YelpAccessToken == nil || u.YelpTokenExpiry == nil || u.YelpTokenExpiry.Before(s.now()) {
		return false
	}
	tok, err := s.box.Open(*u.YelpAccessToken)
	return err == nil && tok != ""
}

// SearchYelp lists up to five provider candidates for the given term and location.
func (s *BusinessService) SearchYelp(ctx context.Context, term, location string) ([]domain.ExternalBusiness, error) {
	p, err := s.yelp()
	if err != nil {
		return nil, err
	}
	return p.SearchBusinesses(ctx, term, location, 5)
}

// SearchLocation is the caller's "city, state", or "" when unknown.
func (s *BusinessService) SearchLocation(ctx context.Context, ownerID string) string {
	b, ok, err := s.Profile(ctx, ownerID)
	if err != nil || !ok {
		return ""
	}
	return searchLocation(b)
}

// ConnectYelp links the caller's business to a provider record chosen on the client.
// Identity fields the owner already set are kept.
func (s *BusinessService) ConnectYelp(ctx context.Context, ownerID string, y domain.ExternalBusiness) (domain.Business, error) {
	if y.ID == "" {
		return domain.Business{}, domain.Invalid("Yelp business data is required")
	}
	b, err := s.Business(ctx, ownerID)
	if err != nil {
		return domain.Business{}, err
	}
	if err := s.ensureYelpFree(ctx, b.ID, y.ID); err != nil {
		return domain.Business{}, err
	}

	fillFromYelp(&b, y)
	if err := s.businesses.UpdateIdentity(ctx, b); err != nil {
		return domain.Business{}, err
	}
	if err := s.businesses.SetYelpLink(ctx, b.ID, yelpLink(y, nil)); err != nil {
		return domain.Business{}, err
	}
	s.evict(ctx, b)
	log.Info().Str("business_id", b.ID).Str("yelp_id", y.ID).Msg("yelp business connected")
	return s.businesses.GetBusinessByOwner(ctx, ownerID)
}

// evict drops every cached view derived from b's Yelp linkage.
func (s *BusinessService) evict(ctx context.Context, b domain.Business) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, statsKey(b.ID))
	_ = s.cache.Del(ctx, analysisKey(b.ID))
	if b.YelpID != nil {
		_ = s.cache.Del(ctx, detailsKey(*b.YelpID))
	}
}

func (s *BusinessService) ensureYelpFree(ctx context.Context, businessID, yelpID string) error {
	other, err := s.businesses.GetBusinessByYelpID(ctx, yelpID)
	switch {
	case domain.IsNotFound(err):
		return nil
	case err != nil:
		return err
	case other.ID != businessID:
		return domain.Conflict("This Yelp business is already connected to another account")
	}
	return nil
}

// ImportYelp finds the caller's business on Yelp by name and city and links it.
func (s *BusinessService) ImportYelp(ctx context.Context, ownerID string) (domain.Business, error) {
	p, err := s.yelp()
	if err != nil {
		return domain.Business{}, err
	}
	b, err := s.Business(ctx, ownerID)
	if err != nil {
		return domain.Business{}, err
	}
	found, err := p.SearchBusinesses(ctx, b.Name, searchLocation(b), 1)
	if err != nil {
		return domain.Business{}, err
	}
	if len(found) == 0 {
		return domain.Business{}, domain.NotFound("Business not found on Yelp")
	}
	y, err := p.GetBusiness(ctx, found[0].ID)
	if err != nil {
		return domain.Business{}, err
	}
	if err := s.ensureYelpFree(ctx, b.ID, y.ID); err != nil {
		return domain.Business{}, err
	}
	now := s.now().UTC()
	if err := s.businesses.SetYelpLink(ctx, b.ID, yelpLink(y, &now)); err != nil {
		return domain.Business{}, err
	}
	s.evict(ctx, b)
	log.Info().Str("business_id", b.ID).Str("yelp_id", y.ID).Msg("yelp business imported")
	return s.businesses.GetBusinessByOwner(ctx, ownerID)
}

// VerifyYelp checks that the caller owns the Yelp listing yelpID.
func (s *BusinessService) VerifyYelp(ctx context.Context, ownerID, yelpID, claimedURL string) (Verification, domain.ExternalBusiness, error) {
	if yelpID == "" || claimedURL == "" {
		return Verification{}, domain.ExternalBusiness{}, domain.Invalid("Business ID and URL are required")
	}
	p, err := s.yelp()
	if err != nil {
		return Verification{}, domain.ExternalBusiness{}, err
	}
	b, err := s.Business(ctx, ownerID)
	if err != nil {
		return Verification{}, domain.ExternalBusiness{}, err
	}
	y, err := p.GetBusiness(ctx, yelpID)
	if err != nil {
		return Verification{}, domain.ExternalBusiness{}, err
	}
	v, err := Verify(b, y, claimedURL)
	if err != nil {
		log.Info().Str("business_id", b.ID).Strs("attempted", v.Attempted).Msg("ownership verification failed")
		return v, y, err
	}
	return v, y, nil
}

// DisconnectYelp clears the linkage and removes every Yelp review and sync log of the business.
func (s *BusinessService) DisconnectYelp(ctx context.Context, ownerID string) (int64, error) {
	b, err := s.Business(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if err := s.businesses.ClearYelpLink(ctx, b.ID); err != nil {
		return 0, err
	}
	n, err := s.reviews.DeleteReviewsBySource(ctx, b.ID, domain.SourceYelp)
	if err != nil {
		return 0, fmt.Errorf("delete yelp reviews: %w", err)
	}
	if err := s.logs.DeleteSyncLogsBySource(ctx, b.ID, domain.SourceYelp); err != nil {
		return n, fmt.Errorf("delete yelp sync logs: %w", err)
	}
	s.evict(ctx, b)
	log.Info().Str("business_id", b.ID).Int64("reviews_deleted", n).Msg("yelp business disconnected")
	return n, nil
}

// StoreYelpToken exchanges a Yelp OAuth code and stores the sealed token on the user.
func (s *BusinessService) StoreYelpToken(ctx context.Context, userID, code string) error {
	if s.yelpOAuth == nil {
		return domain.ProviderUnavailable("Yelp OAuth is not configured", "", nil)
	}
	if s.box == nil {
		return domain.ProviderUnavailable("Token encryption is not configured", "", nil)
	}
	if code == "" {
		return domain.Invalid("Missing authorization code")
	}
	tok, exp, err := s.yelpOAuth.Exchange(ctx, code)
	if err != nil {
		return domain.ProviderUnavailable("Failed to exchange code for token", "", err)
	}
	sealed, err := s.box.Seal(tok)
	if err != nil {
		return err
	}
	return s.users.SetYelpToken(ctx, userID, sealed, exp)
}

func (s *BusinessService) googleProfiles() (domain.GoogleProfiles, error) {
	if s.google == nil {
		return nil, domain.ProviderUnavailable("Google APIs are not configured", "", nil)
	}
	return s.google, nil
}

// ConnectGooglePlace fills the business from Google Places details.
func (s *BusinessService) ConnectGooglePlace(ctx context.Context, ownerID, placeID string) (domain.Business, error) {
	if placeID == "" {
		return domain.Business{}, domain.Invalid("Place ID is required")
	}
	g, err := s.googleProfiles()
	if err != nil {
		return domain.Business{}, err
	}
	b, err := s.Business(ctx, ownerID)
	if err != nil {
		return domain.Business{}, err
	}
	p, err := g.PlaceDetails(ctx, placeID)
	if err != nil {
		return domain.Business{}, err
	}
	if p.PlaceID == "" {
		p.PlaceID = placeID
	}
	return s.applyGoogle(ctx, b, p)
}

// ConnectGoogleProfile links the first Business Profile location of the account behind code.
func (s *BusinessService) ConnectGoogleProfile(ctx context.Context, ownerID, code string) (domain.Business, error) {
	if code == "" {
		return domain.Business{}, domain.Invalid("Authorization code is required")
	}
	g, err := s.googleProfiles()
	if err != nil {
		return domain.Business{}, err
	}
	b, err := s.Business(ctx, ownerID)
	if err != nil {
		return domain.Business{}, err
	}
	p, err := g.LocationFromCode(ctx, code)
	if err != nil {
		return domain.Business{}, err
	}
	return s.applyGoogle(ctx, b, p)
}

func (s *BusinessService) applyGoogle(ctx context.Context, b domain.Business, p domain.GooglePlace) (domain.Business, error) {
	applyPlace(&b, p)
	if err := s.businesses.UpdateIdentity(ctx, b); err != nil {
		return domain.Business{}, err
	}
	link := domain.GoogleLink{
		PlaceID:      firstNonEmpty(p.PlaceID, b.GooglePlaceID),
		BusinessName: p.Name,
		BusinessURL:  firstNonEmpty(p.URL, p.Website),
	}
	if err := s.businesses.SetGoogleLink(ctx, b.ID, link); err != nil {
		return domain.Business{}, err
	}
	log.Info().Str("business_id", b.ID).Str("place_id", link.PlaceID).Msg("google business connected")
	return s.businesses.GetBusinessByOwner(ctx, b.OwnerID)
}
