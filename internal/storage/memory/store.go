// Package memory keeps every repository in process memory. It backs the
// unit tests and the API server when STORE_BACKEND=memory.
package memory

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"reviewdesk/internal/domain"
)

var errInjected = errors.New("memory: injected upsert failure")

// Store implements the user, session, business, review and sync log repositories.
type Store struct {
	mu         sync.Mutex
	users      map[string]domain.User
	sessions   map[string]domain.Session
	businesses map[string]domain.Business
	reviews    []domain.Review
	logs       []domain.SyncLog
	nextID     int64

	failUpsert int
	upserts    int
}

func New() *Store {
	return &Store{
		users:      map[string]domain.User{},
		sessions:   map[string]domain.Session{},
		businesses: map[string]domain.Business{},
	}
}

func (m *Store) UpsertUserByEmail(ctx context.Context, u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cur := range m.users {
		if cur.Email == u.Email {
			if u.Name != "" {
				cur.Name = u.Name
			}
			if u.Image != "" {
				cur.Image = u.Image
			}
			cur.LastLoginAt = u.LastLoginAt
			m.users[id] = cur
			return cur, nil
		}
	}
	m.nextID++
	u.ID = "user-" + strconv.FormatInt(m.nextID, 10)
	u.Role = "owner"
	u.CreatedAt = time.Now().UTC()
	m.users[u.ID] = u
	return u, nil
}

func (m *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (m *Store) SetYelpToken(ctx context.Context, userID, sealed string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.YelpAccessToken = &sealed
	u.YelpTokenExpiry = &expiry
	m.users[userID] = u
	return nil
}

func (m *Store) CreateSession(ctx context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = s
	return nil
}

func (m *Store) GetSession(ctx context.Context, token string) (domain.Session, domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return domain.Session{}, domain.User{}, domain.ErrNotFound
	}
	return s, m.users[s.UserID], nil
}

func (m *Store) DeleteSession(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *Store) GetBusinessByOwner(ctx context.Context, ownerID string) (domain.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.businesses {
		if b.OwnerID == ownerID {
			return b, nil
		}
	}
	return domain.Business{}, domain.ErrNotFound
}

func (m *Store) GetBusinessByYelpID(ctx context.Context, yelpID string) (domain.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.businesses {
		if b.YelpID != nil && *b.YelpID == yelpID {
			return b, nil
		}
	}
	return domain.Business{}, domain.ErrNotFound
}

func (m *Store) ListYelpConnected(ctx context.Context) ([]domain.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Business
	for _, b := range m.businesses {
		if b.YelpConnected() {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *Store) UpsertProfile(ctx context.Context, ownerID string, p domain.ProfileInput) (domain.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var b domain.Business
	for _, cur := range m.businesses {
		if cur.OwnerID == ownerID {
			b = cur
		}
	}
	if b.ID == "" {
		m.nextID++
		b.ID = "biz-" + strconv.FormatInt(m.nextID, 10)
		b.OwnerID = ownerID
		b.CreatedAt = time.Now().UTC()
	}
	b.UpdatedAt = time.Now().UTC()
	b.Name, b.Description, b.Industry = p.Name, p.Description, p.Industry
	b.Address, b.City, b.State, b.ZipCode, b.Country = p.Address, p.City, p.State, p.ZipCode, p.Country
	b.Phone, b.Website = p.Phone, p.Website
	m.businesses[b.ID] = b
	return b, nil
}

func (m *Store) UpdateIdentity(ctx context.Context, b domain.Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.businesses[b.ID]
	cur.Name, cur.Description, cur.Industry = b.Name, b.Description, b.Industry
	cur.Address, cur.City, cur.State, cur.ZipCode, cur.Country = b.Address, b.City, b.State, b.ZipCode, b.Country
	cur.Phone, cur.Website = b.Phone, b.Website
	m.businesses[b.ID] = cur
	return nil
}

func (m *Store) SetYelpLink(ctx context.Context, businessID string, l domain.YelpLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.businesses {
		if other.ID != businessID && other.YelpID != nil && *other.YelpID == l.YelpID {
			return domain.Conflict("This Yelp business is already connected to another account")
		}
	}
	b := m.businesses[businessID]
	id, rating, count := l.YelpID, l.Rating, l.ReviewCount
	b.YelpID, b.YelpURL, b.YelpRating, b.YelpReviewCount = &id, l.URL, &rating, &count
	if l.LastYelpSync != nil {
		b.LastYelpSync = l.LastYelpSync
	}
	m.businesses[businessID] = b
	return nil
}

func (m *Store) ClearYelpLink(ctx context.Context, businessID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.businesses[businessID]
	b.YelpID, b.YelpURL, b.YelpRating, b.YelpReviewCount, b.LastYelpSync = nil, "", nil, nil, nil
	m.businesses[businessID] = b
	return nil
}

func (m *Store) SetGoogleLink(ctx context.Context, businessID string, l domain.GoogleLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.businesses[businessID]
	b.GooglePlaceID, b.GoogleBusinessName, b.GoogleBusinessURL = l.PlaceID, l.BusinessName, l.BusinessURL
	m.businesses[businessID] = b
	return nil
}

func (m *Store) TouchYelpSync(ctx context.Context, businessID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.businesses[businessID]
	b.LastYelpSync = &at
	m.businesses[businessID] = b
	return nil
}

func (m *Store) UpsertReview(ctx context.Context, r domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.failUpsert > 0 && m.upserts == m.failUpsert {
		return errInjected
	}
	for i, cur := range m.reviews {
		// rows without a source id never collide, as with NULL in a unique index
		if r.SourceReviewID == nil || cur.SourceReviewID == nil {
			continue
		}
		if cur.BusinessID == r.BusinessID && cur.Source == r.Source && *cur.SourceReviewID == *r.SourceReviewID {
			r.ID = cur.ID
			m.reviews[i] = r
			return nil
		}
	}
	m.nextID++
	r.ID = m.nextID
	m.reviews = append(m.reviews, r)
	return nil
}

func (m *Store) ListReviews(ctx context.Context, businessID string, pg domain.PageQuery) ([]domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Review
	for _, r := range m.reviews {
		if r.BusinessID == businessID {
			all = append(all, r)
		}
	}
	// newest review_date first, then newest row
	sort.Slice(all, func(i, j int) bool {
		if !all[i].ReviewDate.Equal(all[j].ReviewDate) {
			return all[i].ReviewDate.After(all[j].ReviewDate)
		}
		return all[i].ID > all[j].ID
	})
	if pg.Offset >= len(all) {
		return nil, nil
	}
	all = all[pg.Offset:]
	if pg.Limit > 0 && len(all) > pg.Limit {
		all = all[:pg.Limit]
	}
	return all, nil
}

func (m *Store) CountReviews(ctx context.Context, businessID, source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reviews {
		if r.BusinessID == businessID && (source == "" || r.Source == source) {
			n++
		}
	}
	return n, nil
}

func (m *Store) DeleteReviewsBySource(ctx context.Context, businessID, source string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keep []domain.Review
	var n int64
	for _, r := range m.reviews {
		if r.BusinessID == businessID && r.Source == source {
			n++
			continue
		}
		keep = append(keep, r)
	}
	m.reviews = keep
	return n, nil
}

func (m *Store) AppendSyncLog(ctx context.Context, l domain.SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	l.ID = m.nextID
	m.logs = append(m.logs, l)
	return nil
}

func (m *Store) CountSyncLogsSince(ctx context.Context, businessID, source string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.logs {
		if l.BusinessID == businessID && l.Source == source && !l.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Store) ListSyncLogs(ctx context.Context, businessID, source string, limit int) ([]domain.SyncLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.SyncLog{}
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if l := m.logs[i]; l.BusinessID == businessID && l.Source == source {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *Store) LastSuccessfulSync(ctx context.Context, businessID, source string) (*domain.SyncLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.logs) - 1; i >= 0; i-- {
		if l := m.logs[i]; l.BusinessID == businessID && l.Source == source && l.Status == domain.SyncSuccess {
			return &l, nil
		}
	}
	return nil, nil
}

func (m *Store) DeleteSyncLogsBySource(ctx context.Context, businessID, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keep []domain.SyncLog
	for _, l := range m.logs {
		if l.BusinessID == businessID && l.Source == source {
			continue
		}
		keep = append(keep, l)
	}
	m.logs = keep
	return nil
}

// ---- test hooks ----
//
// The helpers below exist for tests in other packages. Nothing in the serving
// path calls them.

// SyncLogsFor returns every sync log of a business, oldest first.
func (m *Store) SyncLogsFor(businessID string) []domain.SyncLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SyncLog
	for _, l := range m.logs {
		if l.BusinessID == businessID {
			out = append(out, l)
		}
	}
	return out
}

// FailUpsertAt makes the n-th UpsertReview call (1-based) fail. Zero disables it.
func (m *Store) FailUpsertAt(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpsert, m.upserts = n, 0
}

var (
	_ domain.UserRepository     = (*Store)(nil)
	_ domain.SessionRepository  = (*Store)(nil)
	_ domain.BusinessRepository = (*Store)(nil)
	_ domain.ReviewRepository   = (*Store)(nil)
	_ domain.SyncLogRepository  = (*Store)(nil)
)
