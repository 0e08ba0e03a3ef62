package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"reviewdesk/internal/adapters/observability"
	"reviewdesk/internal/domain"
)

// yelpTimeLayout is the format of time_created in Yelp review payloads.
const yelpTimeLayout = "2006-01-02 15:04:05"

// Policy bounds how often a single business may sync.
type Policy struct {
	Window       time.Duration
	MaxPerWindow int
	Cooldown     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Window: 24 * time.Hour, MaxPerWindow: 5, Cooldown: time.Minute}
}

type SyncEngine struct {
	provider   domain.ReviewProvider
	businesses domain.BusinessRepository
	reviews    domain.ReviewRepository
	logs       domain.SyncLogRepository
	cache      domain.Cache
	policy     Policy
	now        func() time.Time
}

func NewSyncEngine(p domain.ReviewProvider, b domain.BusinessRepository, r domain.ReviewRepository,
	l domain.SyncLogRepository, c domain.Cache, pol Policy) *SyncEngine {
	d := DefaultPolicy()
	if pol.Window <= 0 {
		pol.Window = d.Window
	}
	if pol.MaxPerWindow <= 0 {
		pol.MaxPerWindow = d.MaxPerWindow
	}
	if pol.Cooldown < 0 {
		pol.Cooldown = d.Cooldown
	}
	return &SyncEngine{provider: p, businesses: b, reviews: r, logs: l, cache: c, policy: pol, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (s *SyncEngine) WithClock(now func() time.Time) *SyncEngine {
	s.now = now
	return s
}

// Sync pulls the latest provider reviews for b and upserts them. Every attempt
// that passes the window and cooldown checks appends exactly one SyncLog row.
func (s *SyncEngine) Sync(ctx context.Context, b domain.Business) (domain.SyncResult, error) {
	if !b.YelpConnected() {
		return domain.SyncResult{}, domain.Invalid("Business not connected to Yelp")
	}
	if s.provider == nil {
		return domain.SyncResult{}, domain.ProviderUnavailable("Yelp API is not configured", "", nil)
	}
	now := s.now()

	recent, err := s.logs.CountSyncLogsSince(ctx, b.ID, domain.SourceYelp, now.Add(-s.policy.Window))
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("count sync logs: %w", err)
	}
	if recent >= s.policy.MaxPerWindow {
		observability.ObserveSync(domain.SourceYelp, "rate_limited", 0, 0)
		return domain.SyncResult{}, domain.RateLimited("Rate limit exceeded. Please try again later.",
			fmt.Sprintf("Limited to %d syncs per %s to respect Yelp's API limits.", s.policy.MaxPerWindow, windowLabel(s.policy.Window)))
	}
	if b.LastYelpSync != nil && now.Sub(*b.LastYelpSync) < s.policy.Cooldown {
		observability.ObserveSync(domain.SourceYelp, "rate_limited", 0, 0)
		return domain.SyncResult{}, domain.RateLimited("Please wait a moment before syncing again",
			fmt.Sprintf("Minimum %s between syncs", s.policy.Cooldown))
	}

	start := s.now()
	l := log.With().Str("business_id", b.ID).Str("yelp_id", *b.YelpID).Logger()
	l.Info().Msg("yelp sync starting")

	ext, err := s.provider.GetReviews(ctx, *b.YelpID)
	if err != nil {
		dur := s.now().Sub(start)
		s.appendLog(ctx, domain.SyncLog{
			BusinessID: b.ID,
			Source:     domain.SourceYelp,
			Status:     domain.SyncFailure,
			DurationMs: dur.Milliseconds(),
			Error:      err.Error(),
			Timestamp:  s.now(),
		})
		observability.ObserveSync(domain.SourceYelp, domain.SyncFailure, 0, dur)
		l.Warn().Err(err).Msg("yelp sync failed")
		return domain.SyncResult{}, err
	}

	synced := 0
	for _, er := range ext {
		rv, err := mapExternalReview(b.ID, er, s.now())
		if err != nil {
			l.Warn().Err(err).Str("review_id", er.ID).Msg("skipping review")
			continue
		}
		if err := s.reviews.UpsertReview(ctx, rv); err != nil {
			l.Warn().Err(err).Str("review_id", er.ID).Msg("review upsert failed")
			continue
		}
		synced++
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, statsKey(b.ID))
		_ = s.cache.Del(ctx, analysisKey(b.ID))
	}
	dur := s.now().Sub(start)
	done := s.now()

	if err := s.businesses.TouchYelpSync(ctx, b.ID, done); err != nil {
		s.appendLog(ctx, domain.SyncLog{
			BusinessID:    b.ID,
			Source:        domain.SourceYelp,
			Status:        domain.SyncFailure,
			ReviewsSynced: synced,
			DurationMs:    dur.Milliseconds(),
			Error:         err.Error(),
			Timestamp:     done,
		})
		observability.ObserveSync(domain.SourceYelp, domain.SyncFailure, synced, dur)
		return domain.SyncResult{}, fmt.Errorf("touch last sync: %w", err)
	}
	s.appendLog(ctx, domain.SyncLog{
		BusinessID:    b.ID,
		Source:        domain.SourceYelp,
		Status:        domain.SyncSuccess,
		ReviewsSynced: synced,
		DurationMs:    dur.Milliseconds(),
		Timestamp:     done,
	})
	observability.ObserveSync(domain.SourceYelp, domain.SyncSuccess, synced, dur)
	l.Info().Int("synced", synced).Int("fetched", len(ext)).Dur("duration", dur).Msg("yelp sync completed")

	return domain.SyncResult{SyncedCount: synced, DurationMs: dur.Milliseconds()}, nil
}

// appendLog writes the attempt's row even if the request context was cancelled.
func (s *SyncEngine) appendLog(ctx context.Context, l domain.SyncLog) {
	if err := s.logs.AppendSyncLog(context.WithoutCancel(ctx), l); err != nil {
		log.Error().Err(err).Str("business_id", l.BusinessID).Msg("append sync log failed")
	}
}

func windowLabel(d time.Duration) string {
	if d == 24*time.Hour {
		return "day"
	}
	return d.String()
}
