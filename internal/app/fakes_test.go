package app_test

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/storage/memory"
)

type memStore = memory.Store

func newStore() *memStore { return memory.New() }

// ---- provider ----

type fakeProvider struct {
	mu       sync.Mutex
	business domain.ExternalBusiness
	search   []domain.ExternalBusiness
	reviews  []domain.ExternalReview
	err      error
	calls    int
}

func (p *fakeProvider) SearchBusinesses(ctx context.Context, term, location string, limit int) ([]domain.ExternalBusiness, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := p.search
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *fakeProvider) GetBusiness(ctx context.Context, id string) (domain.ExternalBusiness, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return domain.ExternalBusiness{}, p.err
	}
	return p.business, nil
}

func (p *fakeProvider) GetReviews(ctx context.Context, businessID string) ([]domain.ExternalReview, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.reviews, nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// ---- cache ----

// fakeCache round-trips values through JSON like the redis adapter does.
type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

// ---- helpers ----

func ptr[T any](v T) *T { return &v }

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// seedBusiness creates an owner with a Yelp-linked business.
func seedBusiness(m *memStore, yelpID string) domain.Business {
	ctx := context.Background()
	u, _ := m.UpsertUserByEmail(ctx, domain.User{Email: "owner@example.com", Name: "Owner"})
	b, _ := m.UpsertProfile(ctx, u.ID, domain.ProfileInput{Name: "Acme Cafe", City: "San Francisco", State: "CA"})
	if yelpID != "" {
		_ = m.SetYelpLink(ctx, b.ID, domain.YelpLink{YelpID: yelpID, URL: "https://www.yelp.com/biz/" + yelpID, Rating: 4.5, ReviewCount: 120})
	}
	b, _ = m.GetBusinessByOwner(ctx, u.ID)
	return b
}
