package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"reviewdesk/internal/domain"
)

const errDupEntry = 1062

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

// nullIfEmpty stores "" as NULL so optional text columns stay unset.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isDup(err error) bool {
	var me *mysqldrv.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// ---- users / sessions ----

type rowScanner interface {
	Scan(dest ...any) error
}

type userCols struct {
	name, image, phone, token sql.NullString
	expiry, lastLogin         sql.NullTime
}

func (c *userCols) dest(u *domain.User) []any {
	return []any{&u.ID, &u.Email, &c.name, &c.image, &c.phone, &u.Role, &c.token, &c.expiry, &c.lastLogin, &u.CreatedAt}
}

func (c *userCols) apply(u *domain.User) {
	u.Name = c.name.String
	u.Image = c.image.String
	u.Phone = c.phone.String
	if c.token.Valid {
		s := c.token.String
		u.YelpAccessToken = &s
	}
	if c.expiry.Valid {
		t := c.expiry.Time
		u.YelpTokenExpiry = &t
	}
	if c.lastLogin.Valid {
		t := c.lastLogin.Time
		u.LastLoginAt = &t
	}
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var c userCols
	if err := row.Scan(c.dest(&u)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	c.apply(&u)
	return u, nil
}

func (r *Repo) UpsertUserByEmail(ctx context.Context, u domain.User) (domain.User, error) {
	_, err := r.db.ExecContext(ctx, upsertUserSQL,
		uuid.NewString(),
		u.Email,
		nullIfEmpty(u.Name),
		nullIfEmpty(u.Image),
		valTime(u.LastLoginAt),
	)
	if err != nil {
		return domain.User{}, err
	}
	return scanUser(r.db.QueryRowContext(ctx, getUserByEmailSQL, u.Email))
}

func (r *Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, getUserSQL, id))
}

func (r *Repo) SetYelpToken(ctx context.Context, userID, sealed string, expiry time.Time) error {
	_, err := r.db.ExecContext(ctx, setYelpTokenSQL, sealed, expiry.UTC(), userID)
	return err
}

func (r *Repo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, insertSessionSQL, s.Token, s.UserID, s.Expires.UTC(), s.CreatedAt.UTC())
	return err
}

func (r *Repo) GetSession(ctx context.Context, token string) (domain.Session, domain.User, error) {
	var s domain.Session
	var u domain.User
	var c userCols
	dest := append([]any{&s.Token, &s.UserID, &s.Expires, &s.CreatedAt}, c.dest(&u)...)
	if err := r.db.QueryRowContext(ctx, getSessionSQL, token).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, domain.User{}, domain.ErrNotFound
		}
		return domain.Session{}, domain.User{}, err
	}
	c.apply(&u)
	return s, u, nil
}

func (r *Repo) DeleteSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, deleteSessionSQL, token)
	return err
}

// ---- businesses ----

func scanBusiness(row rowScanner) (domain.Business, error) {
	var b domain.Business
	var (
		name, desc, industry, addr, city, state, zip, country sql.NullString
		phone, website, yelpID, yelpURL                       sql.NullString
		gPlace, gName, gURL                                   sql.NullString
		yelpRating                                            sql.NullFloat64
		yelpCount                                             sql.NullInt64
		lastSync                                              sql.NullTime
	)
	if err := row.Scan(
		&b.ID, &b.OwnerID,
		&name, &desc, &industry, &addr, &city, &state, &zip, &country,
		&phone, &website,
		&yelpID, &yelpURL, &yelpRating, &yelpCount, &lastSync,
		&gPlace, &gName, &gURL,
		&b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Business{}, domain.ErrNotFound
		}
		return domain.Business{}, err
	}

	b.Name, b.Description, b.Industry = name.String, desc.String, industry.String
	b.Address, b.City, b.State, b.ZipCode, b.Country = addr.String, city.String, state.String, zip.String, country.String
	b.Phone, b.Website = phone.String, website.String
	if yelpID.Valid && yelpID.String != "" {
		s := yelpID.String
		b.YelpID = &s
	}
	b.YelpURL = yelpURL.String
	if yelpRating.Valid {
		f := yelpRating.Float64
		b.YelpRating = &f
	}
	if yelpCount.Valid {
		n := int(yelpCount.Int64)
		b.YelpReviewCount = &n
	}
	if lastSync.Valid {
		t := lastSync.Time
		b.LastYelpSync = &t
	}
	b.GooglePlaceID, b.GoogleBusinessName, b.GoogleBusinessURL = gPlace.String, gName.String, gURL.String
	return b, nil
}

func (r *Repo) GetBusinessByOwner(ctx context.Context, ownerID string) (domain.Business, error) {
	return scanBusiness(r.db.QueryRowContext(ctx, getBusinessByOwnerSQL, ownerID))
}

func (r *Repo) GetBusinessByYelpID(ctx context.Context, yelpID string) (domain.Business, error) {
	return scanBusiness(r.db.QueryRowContext(ctx, getBusinessByYelpIDSQL, yelpID))
}

func (r *Repo) ListYelpConnected(ctx context.Context) ([]domain.Business, error) {
	rows, err := r.db.QueryContext(ctx, listYelpConnectedSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repo) UpsertProfile(ctx context.Context, ownerID string, p domain.ProfileInput) (domain.Business, error) {
	_, err := r.db.ExecContext(ctx, upsertProfileSQL,
		uuid.NewString(),
		ownerID,
		p.Name,
		nullIfEmpty(p.Description),
		nullIfEmpty(p.Industry),
		nullIfEmpty(p.Address),
		nullIfEmpty(p.City),
		nullIfEmpty(p.State),
		nullIfEmpty(p.ZipCode),
		nullIfEmpty(p.Country),
		nullIfEmpty(p.Phone),
		nullIfEmpty(p.Website),
	)
	if err != nil {
		return domain.Business{}, err
	}
	return r.GetBusinessByOwner(ctx, ownerID)
}

func (r *Repo) UpdateIdentity(ctx context.Context, b domain.Business) error {
	_, err := r.db.ExecContext(ctx, updateIdentitySQL,
		nullIfEmpty(b.Name),
		nullIfEmpty(b.Description),
		nullIfEmpty(b.Industry),
		nullIfEmpty(b.Address),
		nullIfEmpty(b.City),
		nullIfEmpty(b.State),
		nullIfEmpty(b.ZipCode),
		nullIfEmpty(b.Country),
		nullIfEmpty(b.Phone),
		nullIfEmpty(b.Website),
		b.ID,
	)
	return err
}

// SetYelpLink returns a Conflict error when yelp_id already belongs to another business.
func (r *Repo) SetYelpLink(ctx context.Context, businessID string, l domain.YelpLink) error {
	_, err := r.db.ExecContext(ctx, setYelpLinkSQL,
		l.YelpID,
		nullIfEmpty(l.URL),
		l.Rating,
		l.ReviewCount,
		valTime(l.LastYelpSync),
		businessID,
	)
	if isDup(err) {
		return domain.Conflict("This Yelp business is already connected to another account")
	}
	return err
}

func (r *Repo) ClearYelpLink(ctx context.Context, businessID string) error {
	_, err := r.db.ExecContext(ctx, clearYelpLinkSQL, businessID)
	return err
}

func (r *Repo) SetGoogleLink(ctx context.Context, businessID string, l domain.GoogleLink) error {
	_, err := r.db.ExecContext(ctx, setGoogleLinkSQL,
		nullIfEmpty(l.PlaceID),
		nullIfEmpty(l.BusinessName),
		nullIfEmpty(l.BusinessURL),
		businessID,
	)
	return err
}

func (r *Repo) TouchYelpSync(ctx context.Context, businessID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, touchYelpSyncSQL, at.UTC(), businessID)
	return err
}

// ---- reviews ----

func (r *Repo) UpsertReview(ctx context.Context, rv domain.Review) error {
	_, err := r.db.ExecContext(ctx, upsertReviewSQL,
		rv.BusinessID,
		rv.Source,
		valStr(rv.SourceReviewID),
		rv.Rating,
		nullIfEmpty(rv.Text),
		nullIfEmpty(rv.AuthorName),
		rv.ReviewDate.UTC(),
		nullIfEmpty(rv.SourceURL),
		valTime(rv.LastSynced),
	)
	return err
}

func (r *Repo) ListReviews(ctx context.Context, businessID string, pg domain.PageQuery) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, listReviewsSQL, businessID, pg.Limit, pg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var rv domain.Review
		var (
			sourceID   sql.NullString
			text       sql.NullString
			author     sql.NullString
			sourceURL  sql.NullString
			lastSynced sql.NullTime
		)
		if err := rows.Scan(
			&rv.ID,
			&rv.BusinessID,
			&rv.Source,
			&sourceID,
			&rv.Rating,
			&text,
			&author,
			&rv.ReviewDate,
			&sourceURL,
			&lastSynced,
			&rv.CreatedAt,
		); err != nil {
			return nil, err
		}
		if sourceID.Valid {
			s := sourceID.String
			rv.SourceReviewID = &s
		}
		rv.Text = text.String
		rv.AuthorName = author.String
		rv.SourceURL = sourceURL.String
		if lastSynced.Valid {
			t := lastSynced.Time
			rv.LastSynced = &t
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountReviews counts all reviews of a business when source is "".
func (r *Repo) CountReviews(ctx context.Context, businessID, source string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countReviewsSQL, businessID, source, source).Scan(&n)
	return n, err
}

func (r *Repo) DeleteReviewsBySource(ctx context.Context, businessID, source string) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteReviewsBySourceSQL, businessID, source)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- sync logs ----

func (r *Repo) AppendSyncLog(ctx context.Context, l domain.SyncLog) error {
	_, err := r.db.ExecContext(ctx, insertSyncLogSQL,
		l.BusinessID,
		l.Source,
		l.Status,
		l.ReviewsSynced,
		l.DurationMs,
		nullIfEmpty(l.Error),
		l.Timestamp.UTC(),
	)
	return err
}

func (r *Repo) CountSyncLogsSince(ctx context.Context, businessID, source string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countSyncLogsSinceSQL, businessID, source, since.UTC()).Scan(&n)
	return n, err
}

func scanSyncLog(row rowScanner) (domain.SyncLog, error) {
	var l domain.SyncLog
	var msg sql.NullString
	if err := row.Scan(&l.ID, &l.BusinessID, &l.Source, &l.Status, &l.ReviewsSynced, &l.DurationMs, &msg, &l.Timestamp); err != nil {
		return domain.SyncLog{}, err
	}
	l.Error = msg.String
	return l, nil
}

func (r *Repo) ListSyncLogs(ctx context.Context, businessID, source string, limit int) ([]domain.SyncLog, error) {
	rows, err := r.db.QueryContext(ctx, listSyncLogsSQL, businessID, source, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.SyncLog{}
	for rows.Next() {
		l, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LastSuccessfulSync returns nil, nil when the business has never synced successfully.
func (r *Repo) LastSuccessfulSync(ctx context.Context, businessID, source string) (*domain.SyncLog, error) {
	l, err := scanSyncLog(r.db.QueryRowContext(ctx, lastSuccessfulSyncSQL, businessID, source))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *Repo) DeleteSyncLogsBySource(ctx context.Context, businessID, source string) error {
	_, err := r.db.ExecContext(ctx, deleteSyncLogsBySourceSQL, businessID, source)
	return err
}

var (
	_ domain.UserRepository     = (*Repo)(nil)
	_ domain.SessionRepository  = (*Repo)(nil)
	_ domain.BusinessRepository = (*Repo)(nil)
	_ domain.ReviewRepository   = (*Repo)(nil)
	_ domain.SyncLogRepository  = (*Repo)(nil)
)
