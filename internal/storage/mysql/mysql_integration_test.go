//go:build integration

package mysql_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"reviewdesk/internal/domain"
	mysqlrepo "reviewdesk/internal/storage/mysql"
)

func pstr(s string) *string { return &s }

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	// Start isolated MySQL; let Docker pick a free host port.
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=reviewdesk",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "reviewdesk")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := mysqlrepo.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// second run is a no-op
	if err := mysqlrepo.Migrate(db); err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	return db
}

func TestRepo_MySQL_ProfileReviewsAndSyncLogs(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	u, err := repo.UpsertUserByEmail(ctx, domain.User{Email: "owner@example.com", Name: "Owner", LastLoginAt: &now})
	if err != nil {
		t.Fatalf("UpsertUserByEmail: %v", err)
	}
	again, err := repo.UpsertUserByEmail(ctx, domain.User{Email: "owner@example.com", LastLoginAt: &now})
	if err != nil || again.ID != u.ID || again.Name != "Owner" {
		t.Fatalf("second upsert changed identity: %+v err=%v", again, err)
	}

	if err := repo.CreateSession(ctx, domain.Session{Token: "tok-1", UserID: u.ID, Expires: now.Add(time.Hour), CreatedAt: now}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	s, su, err := repo.GetSession(ctx, "tok-1")
	if err != nil || s.UserID != u.ID || su.Email != u.Email {
		t.Fatalf("GetSession: %+v %+v err=%v", s, su, err)
	}
	if err := repo.DeleteSession(ctx, "tok-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, _, err := repo.GetSession(ctx, "tok-1"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	b, err := repo.UpsertProfile(ctx, u.ID, domain.ProfileInput{Name: "Acme Cafe", Phone: "+14155550100"})
	if err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	b2, err := repo.UpsertProfile(ctx, u.ID, domain.ProfileInput{Name: "Acme Coffee"})
	if err != nil || b2.ID != b.ID || b2.Name != "Acme Coffee" {
		t.Fatalf("profile upsert should update in place: %+v err=%v", b2, err)
	}

	if err := repo.SetYelpLink(ctx, b.ID, domain.YelpLink{YelpID: "acme-sf", URL: "https://yelp.com/biz/acme-sf", Rating: 4.5, ReviewCount: 10}); err != nil {
		t.Fatalf("SetYelpLink: %v", err)
	}

	other, _ := repo.UpsertUserByEmail(ctx, domain.User{Email: "other@example.com"})
	ob, _ := repo.UpsertProfile(ctx, other.ID, domain.ProfileInput{Name: "Other"})
	if err := repo.SetYelpLink(ctx, ob.ID, domain.YelpLink{YelpID: "acme-sf"}); domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("duplicate yelp id should conflict, got %v", err)
	}

	connected, err := repo.ListYelpConnected(ctx)
	if err != nil || len(connected) != 1 || connected[0].ID != b.ID {
		t.Fatalf("ListYelpConnected: %+v err=%v", connected, err)
	}

	// same source id twice -> one row
	rv := domain.Review{
		BusinessID:     b.ID,
		Source:         domain.SourceYelp,
		SourceReviewID: pstr("r1"),
		Rating:         4,
		Text:           "Great",
		AuthorName:     "Ana",
		ReviewDate:     now.Add(-time.Hour),
		LastSynced:     &now,
	}
	for i := 0; i < 2; i++ {
		if err := repo.UpsertReview(ctx, rv); err != nil {
			t.Fatalf("UpsertReview #%d: %v", i, err)
		}
	}
	rv.Rating = 5
	if err := repo.UpsertReview(ctx, rv); err != nil {
		t.Fatalf("UpsertReview update: %v", err)
	}
	n, err := repo.CountReviews(ctx, b.ID, domain.SourceYelp)
	if err != nil || n != 1 {
		t.Fatalf("CountReviews = %d err=%v, want 1", n, err)
	}
	list, err := repo.ListReviews(ctx, b.ID, domain.PageQuery{Limit: 10})
	if err != nil || len(list) != 1 || list[0].Rating != 5 {
		t.Fatalf("ListReviews: %+v err=%v", list, err)
	}

	for i, st := range []string{domain.SyncSuccess, domain.SyncFailure} {
		if err := repo.AppendSyncLog(ctx, domain.SyncLog{
			BusinessID: b.ID, Source: domain.SourceYelp, Status: st,
			ReviewsSynced: 1 - i, DurationMs: 120, Timestamp: now.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("AppendSyncLog: %v", err)
		}
	}
	cnt, err := repo.CountSyncLogsSince(ctx, b.ID, domain.SourceYelp, now.Add(-24*time.Hour))
	if err != nil || cnt != 2 {
		t.Fatalf("CountSyncLogsSince = %d err=%v", cnt, err)
	}
	last, err := repo.LastSuccessfulSync(ctx, b.ID, domain.SourceYelp)
	if err != nil || last == nil || last.Status != domain.SyncSuccess {
		t.Fatalf("LastSuccessfulSync: %+v err=%v", last, err)
	}
	hist, err := repo.ListSyncLogs(ctx, b.ID, domain.SourceYelp, 10)
	if err != nil || len(hist) != 2 || hist[0].Status != domain.SyncFailure {
		t.Fatalf("ListSyncLogs newest first: %+v err=%v", hist, err)
	}

	// disconnect path
	if _, err := repo.DeleteReviewsBySource(ctx, b.ID, domain.SourceYelp); err != nil {
		t.Fatalf("DeleteReviewsBySource: %v", err)
	}
	if err := repo.DeleteSyncLogsBySource(ctx, b.ID, domain.SourceYelp); err != nil {
		t.Fatalf("DeleteSyncLogsBySource: %v", err)
	}
	if err := repo.ClearYelpLink(ctx, b.ID); err != nil {
		t.Fatalf("ClearYelpLink: %v", err)
	}
	got, err := repo.GetBusinessByOwner(ctx, u.ID)
	if err != nil || got.YelpConnected() {
		t.Fatalf("business still linked: %+v err=%v", got, err)
	}
}
