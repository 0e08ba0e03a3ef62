package mysql

// -----------------------------------------------------------------------------
// USERS / SESSIONS
// -----------------------------------------------------------------------------

const upsertUserSQL = `
INSERT INTO users
  (id, email, name, image, role, last_login_at)
VALUES
  (?, ?, ?, ?, 'owner', ?)
ON DUPLICATE KEY UPDATE
  name          = COALESCE(VALUES(name), users.name),
  image         = COALESCE(VALUES(image), users.image),
  last_login_at = VALUES(last_login_at)
`

const userColumns = `id, email, name, image, phone, role, yelp_access_token, yelp_token_expiry, last_login_at, created_at`

const getUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE email = ?`

const getUserSQL = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

const setYelpTokenSQL = `UPDATE users SET yelp_access_token = ?, yelp_token_expiry = ? WHERE id = ?`

const insertSessionSQL = `
INSERT INTO sessions (session_token, user_id, expires, created_at)
VALUES (?, ?, ?, ?)
`

const getSessionSQL = `
SELECT
  s.session_token, s.user_id, s.expires, s.created_at,
  u.id, u.email, u.name, u.image, u.phone, u.role,
  u.yelp_access_token, u.yelp_token_expiry, u.last_login_at, u.created_at
FROM sessions s
JOIN users u ON u.id = s.user_id
WHERE s.session_token = ?
`

const deleteSessionSQL = `DELETE FROM sessions WHERE session_token = ?`

// -----------------------------------------------------------------------------
// BUSINESSES
// -----------------------------------------------------------------------------

const businessColumns = `
  id, owner_id, name, description, industry, address, city, state, zip_code, country,
  phone, website, yelp_id, yelp_url, yelp_rating, yelp_review_count, last_yelp_sync,
  google_place_id, google_business_name, google_business_url, created_at, updated_at`

const getBusinessByOwnerSQL = `SELECT` + businessColumns + `
FROM businesses WHERE owner_id = ?`

const getBusinessByYelpIDSQL = `SELECT` + businessColumns + `
FROM businesses WHERE yelp_id = ?`

const listYelpConnectedSQL = `SELECT` + businessColumns + `
FROM businesses WHERE yelp_id IS NOT NULL AND yelp_id <> ''
ORDER BY last_yelp_sync IS NOT NULL, last_yelp_sync, id`

// owner_id is unique, so a second profile save updates the first row.
const upsertProfileSQL = `
INSERT INTO businesses
  (id, owner_id, name, description, industry, address, city, state, zip_code, country, phone, website)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name        = VALUES(name),
  description = VALUES(description),
  industry    = VALUES(industry),
  address     = VALUES(address),
  city        = VALUES(city),
  state       = VALUES(state),
  zip_code    = VALUES(zip_code),
  country     = VALUES(country),
  phone       = VALUES(phone),
  website     = VALUES(website),
  updated_at  = CURRENT_TIMESTAMP(3)
`

const updateIdentitySQL = `
UPDATE businesses SET
  name = ?, description = ?, industry = ?, address = ?, city = ?, state = ?,
  zip_code = ?, country = ?, phone = ?, website = ?
WHERE id = ?
`

const setYelpLinkSQL = `
UPDATE businesses SET
  yelp_id           = ?,
  yelp_url          = ?,
  yelp_rating       = ?,
  yelp_review_count = ?,
  last_yelp_sync    = COALESCE(?, last_yelp_sync)
WHERE id = ?
`

const clearYelpLinkSQL = `
UPDATE businesses SET
  yelp_id = NULL, yelp_url = NULL, yelp_rating = NULL, yelp_review_count = NULL, last_yelp_sync = NULL
WHERE id = ?
`

const setGoogleLinkSQL = `
UPDATE businesses SET
  google_place_id      = ?,
  google_business_name = ?,
  google_business_url  = ?
WHERE id = ?
`

const touchYelpSyncSQL = `UPDATE businesses SET last_yelp_sync = ? WHERE id = ?`

// -----------------------------------------------------------------------------
// REVIEWS
// -----------------------------------------------------------------------------

// Note: `text` is reserved; keep it quoted everywhere.
// The unique key (business_id, source, source_review_id) makes this idempotent.
const upsertReviewSQL = "INSERT INTO reviews\n" +
	"  (business_id, source, source_review_id, rating, `text`, author_name, review_date, source_url, last_synced)\n" +
	"VALUES\n" +
	"  (?, ?, ?, ?, ?, ?, ?, ?, ?)\n" +
	"ON DUPLICATE KEY UPDATE\n" +
	"  rating      = VALUES(rating),\n" +
	"  `text`      = VALUES(`text`),\n" +
	"  author_name = VALUES(author_name),\n" +
	"  review_date = VALUES(review_date),\n" +
	"  source_url  = VALUES(source_url),\n" +
	"  last_synced = VALUES(last_synced)\n"

const listReviewsSQL = "SELECT id, business_id, source, source_review_id, rating, `text`, author_name,\n" +
	"  review_date, source_url, last_synced, created_at\n" +
	"FROM reviews\n" +
	"WHERE business_id = ?\n" +
	"ORDER BY review_date DESC, id DESC\n" +
	"LIMIT ? OFFSET ?"

const countReviewsSQL = `SELECT COUNT(*) FROM reviews WHERE business_id = ? AND (? = '' OR source = ?)`

const deleteReviewsBySourceSQL = `DELETE FROM reviews WHERE business_id = ? AND source = ?`

// -----------------------------------------------------------------------------
// SYNC LOGS
// -----------------------------------------------------------------------------

const insertSyncLogSQL = "INSERT INTO sync_logs\n" +
	"  (business_id, source, status, reviews_synced, duration_ms, error, `timestamp`)\n" +
	"VALUES (?, ?, ?, ?, ?, ?, ?)"

const countSyncLogsSinceSQL = "SELECT COUNT(*) FROM sync_logs WHERE business_id = ? AND source = ? AND `timestamp` >= ?"

const syncLogColumns = "id, business_id, source, status, reviews_synced, duration_ms, error, `timestamp`"

const listSyncLogsSQL = "SELECT " + syncLogColumns + "\n" +
	"FROM sync_logs WHERE business_id = ? AND source = ?\n" +
	"ORDER BY `timestamp` DESC, id DESC LIMIT ?"

const lastSuccessfulSyncSQL = "SELECT " + syncLogColumns + "\n" +
	"FROM sync_logs WHERE business_id = ? AND source = ? AND status = 'success'\n" +
	"ORDER BY `timestamp` DESC, id DESC LIMIT 1"

const deleteSyncLogsBySourceSQL = `DELETE FROM sync_logs WHERE business_id = ? AND source = ?`
