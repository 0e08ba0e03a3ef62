package domain

import (
	"context"
	"time"
)

type UserRepository interface {
	UpsertUserByEmail(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	SetYelpToken(ctx context.Context, userID, sealed string, expiry time.Time) error
}

type SessionRepository interface {
	CreateSession(ctx context.Context, s Session) error
	// GetSession returns the session joined with its user.
	GetSession(ctx context.Context, token string) (Session, User, error)
	DeleteSession(ctx context.Context, token string) error
}

type BusinessRepository interface {
	GetBusinessByOwner(ctx context.Context, ownerID string) (Business, error)
	GetBusinessByYelpID(ctx context.Context, yelpID string) (Business, error)
	ListYelpConnected(ctx context.Context) ([]Business, error)
	UpsertProfile(ctx context.Context, ownerID string, p ProfileInput) (Business, error)
	UpdateIdentity(ctx context.Context, b Business) error
	SetYelpLink(ctx context.Context, businessID string, l YelpLink) error
	ClearYelpLink(ctx context.Context, businessID string) error
	SetGoogleLink(ctx context.Context, businessID string, l GoogleLink) error
	TouchYelpSync(ctx context.Context, businessID string, at time.Time) error
}

type ReviewRepository interface {
	// UpsertReview is idempotent on (business_id, source, source_review_id).
	UpsertReview(ctx context.Context, r Review) error
	ListReviews(ctx context.Context, businessID string, pg PageQuery) ([]Review, error)
	CountReviews(ctx context.Context, businessID, source string) (int, error)
	DeleteReviewsBySource(ctx context.Context, businessID, source string) (int64, error)
}

type SyncLogRepository interface {
	AppendSyncLog(ctx context.Context, l SyncLog) error
	CountSyncLogsSince(ctx context.Context, businessID, source string, since time.Time) (int, error)
	ListSyncLogs(ctx context.Context, businessID, source string, limit int) ([]SyncLog, error)
	LastSuccessfulSync(ctx context.Context, businessID, source string) (*SyncLog, error)
	DeleteSyncLogsBySource(ctx context.Context, businessID, source string) error
}

// ReviewProvider is the external review API (Yelp Fusion).
type ReviewProvider interface {
	SearchBusinesses(ctx context.Context, term, location string, limit int) ([]ExternalBusiness, error)
	GetBusiness(ctx context.Context, id string) (ExternalBusiness, error)
	GetReviews(ctx context.Context, businessID string) ([]ExternalReview, error)
}

// GoogleProfiles reads Google Places and Google Business Profile data.
type GoogleProfiles interface {
	PlaceDetails(ctx context.Context, placeID string) (GooglePlace, error)
	LocationFromCode(ctx context.Context, code string) (GooglePlace, error)
}

type IdentityVerifier interface {
	VerifyIDToken(ctx context.Context, credential string) (GoogleIdentity, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, reviews []ReviewSample) (ReviewAnalysis, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
