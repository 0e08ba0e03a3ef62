package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"reviewdesk/internal/domain"
)

const (
	historyLimit  = 10
	analysisLimit = 50
)

// analysisTTL bounds a cached analysis; a sync evicts it earlier.
const analysisTTL = 24 * time.Hour

type QueryService struct {
	businesses domain.BusinessRepository
	reviews    domain.ReviewRepository
	logs       domain.SyncLogRepository
	provider   domain.ReviewProvider
	analyzer   domain.Analyzer
	cache      domain.Cache
	cacheTTL   time.Duration
}

func NewQueryService(b domain.BusinessRepository, r domain.ReviewRepository, l domain.SyncLogRepository,
	p domain.ReviewProvider, a domain.Analyzer, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{businesses: b, reviews: r, logs: l, provider: p, analyzer: a, cache: c, cacheTTL: ttl}
}

func (s *QueryService) ttlSec() int { return int(s.cacheTTL.Seconds()) }

// cached and store treat a nil cache as always missing.
func (s *QueryService) cached(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, _ := s.cache.Get(ctx, key, dst)
	return ok
}

func (s *QueryService) store(ctx context.Context, key string, v any, ttlSec int) {
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, v, ttlSec)
	}
}

func (s *QueryService) Info(ctx context.Context, ownerID string) (BusinessInfo, error) {
	b, err := s.businesses.GetBusinessByOwner(ctx, ownerID)
	if domain.IsNotFound(err) {
		return BusinessInfo{}, domain.NotFound("No business found")
	}
	if err != nil {
		return BusinessInfo{}, err
	}
	return BusinessInfo{Name: b.Name, City: b.City, State: b.State, Industry: b.Industry}, nil
}

// SyncStats reports the provider's total review count next to the number stored locally.
func (s *QueryService) SyncStats(ctx context.Context, b domain.Business) (domain.SyncStats, error) {
	key := statsKey(b.ID)
	var out domain.SyncStats
	if s.cached(ctx, key, &out) {
		return out, nil
	}

	n, err := s.reviews.CountReviews(ctx, b.ID, domain.SourceYelp)
	if err != nil {
		return domain.SyncStats{}, err
	}
	last, err := s.logs.LastSuccessfulSync(ctx, b.ID, domain.SourceYelp)
	if err != nil {
		return domain.SyncStats{}, err
	}
	out = domain.SyncStats{SyncedCount: n, LastSyncedAt: b.LastYelpSync}
	if b.YelpReviewCount != nil {
		out.TotalReviews = *b.YelpReviewCount
	}
	if last != nil {
		ts := last.Timestamp
		out.LastSyncedAt = &ts
	}
	s.store(ctx, key, out, s.ttlSec())
	return out, nil
}

func (s *QueryService) SyncHistory(ctx context.Context, b domain.Business) ([]domain.SyncLog, error) {
	return s.logs.ListSyncLogs(ctx, b.ID, domain.SourceYelp, historyLimit)
}

func (s *QueryService) yelpOf(b domain.Business) (domain.ReviewProvider, string, error) {
	if !b.YelpConnected() {
		return nil, "", domain.Invalid("No Yelp business connected")
	}
	if s.provider == nil {
		return nil, "", domain.ProviderUnavailable("Yelp API is not configured", "", nil)
	}
	return s.provider, *b.YelpID, nil
}

// YelpDetails returns the live provider record, cached for the configured TTL.
func (s *QueryService) YelpDetails(ctx context.Context, b domain.Business) (domain.ExternalBusiness, error) {
	p, id, err := s.yelpOf(b)
	if err != nil {
		return domain.ExternalBusiness{}, err
	}
	key := detailsKey(id)
	var out domain.ExternalBusiness
	if s.cached(ctx, key, &out) {
		return out, nil
	}
	out, err = p.GetBusiness(ctx, id)
	if err != nil {
		return domain.ExternalBusiness{}, err
	}
	s.store(ctx, key, out, s.ttlSec())
	return out, nil
}

func (s *QueryService) Preview(ctx context.Context, b domain.Business) (Preview, error) {
	d, err := s.YelpDetails(ctx, b)
	if err != nil {
		return Preview{}, err
	}
	out := Preview{TotalReviews: d.ReviewCount, Rating: d.Rating}

	// the sample is optional; a failure here does not fail the preview
	rs, err := s.provider.GetReviews(ctx, d.ID)
	if err != nil {
		log.Warn().Err(err).Str("yelp_id", d.ID).Msg("preview sample unavailable")
		return out, nil
	}
	if len(rs) > 0 {
		r := rs[0]
		date := r.TimeCreated
		if t, err := time.Parse(yelpTimeLayout, r.TimeCreated); err == nil {
			date = t.Format("2006-01-02")
		}
		out.ReviewSample = &ReviewSample{Text: r.Text, Rating: r.Rating, Author: r.AuthorName, Date: date}
	}
	return out, nil
}

// LiveReviews reads the provider's current reviews without storing them.
func (s *QueryService) LiveReviews(ctx context.Context, b domain.Business) ([]ExternalReviewView, error) {
	p, id, err := s.yelpOf(b)
	if err != nil {
		return nil, err
	}
	rs, err := p.GetReviews(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]ExternalReviewView, 0, len(rs))
	for _, r := range rs {
		at, err := time.Parse(yelpTimeLayout, r.TimeCreated)
		if err != nil {
			log.Warn().Err(err).Str("review_id", r.ID).Msg("skipping live review with bad time_created")
			continue
		}
		out = append(out, ExternalReviewView{
			ID:         r.ID,
			Source:     domain.SourceYelp,
			Rating:     r.Rating,
			Text:       r.Text,
			AuthorName: r.AuthorName,
			ReviewDate: at.UTC(),
			SourceURL:  r.URL,
		})
	}
	return out, nil
}

// ListReviews pages the stored reviews of a business, newest first. page starts at 1.
func (s *QueryService) ListReviews(ctx context.Context, b domain.Business, page, limit int) (ReviewsPage, error) {
	if page < 1 {
		page = 1
	}
	rs, err := s.reviews.ListReviews(ctx, b.ID, domain.PageQuery{Limit: limit, Offset: (page - 1) * limit})
	if err != nil {
		return ReviewsPage{}, err
	}
	total, err := s.reviews.CountReviews(ctx, b.ID, "")
	if err != nil {
		return ReviewsPage{}, err
	}
	out := ReviewsPage{Reviews: make([]ReviewView, 0, len(rs)), Page: page, Limit: limit, Total: total}
	for _, r := range rs {
		out.Reviews = append(out.Reviews, toReviewView(r))
	}
	return out, nil
}

// Analyze runs the analyzer over the newest reviews. The result is cached until
// the next sync of the business.
func (s *QueryService) Analyze(ctx context.Context, b domain.Business) (domain.ReviewAnalysis, error) {
	if s.analyzer == nil {
		return domain.ReviewAnalysis{}, domain.ProviderUnavailable("Review analysis is not configured", "", nil)
	}
	key := analysisKey(b.ID)
	var out domain.ReviewAnalysis
	if s.cached(ctx, key, &out) {
		return out, nil
	}

	rs, err := s.reviews.ListReviews(ctx, b.ID, domain.PageQuery{Limit: analysisLimit})
	if err != nil {
		return domain.ReviewAnalysis{}, err
	}
	if len(rs) == 0 {
		return domain.ReviewAnalysis{}, domain.NotFound("No reviews found")
	}
	samples := make([]domain.ReviewSample, 0, len(rs))
	for _, r := range rs {
		samples = append(samples, domain.ReviewSample{Text: r.Text, Rating: r.Rating, Date: r.ReviewDate})
	}
	out, err = s.analyzer.Analyze(ctx, samples)
	if err != nil {
		return domain.ReviewAnalysis{}, err
	}
	s.store(ctx, key, out, int(analysisTTL.Seconds()))
	return out, nil
}
