package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"reviewdesk/internal/domain"
)

type SessionService struct {
	sessions domain.SessionRepository
	users    domain.UserRepository
	idp      domain.IdentityVerifier
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionService(s domain.SessionRepository, u domain.UserRepository, idp domain.IdentityVerifier, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionService{sessions: s, users: u, idp: idp, ttl: ttl, now: time.Now}
}

// TTL is the lifetime given to new sessions.
func (s *SessionService) TTL() time.Duration { return s.ttl }

// Resolve maps a session token to the signed-in identity. It never extends or
// rotates the session.
func (s *SessionService) Resolve(ctx context.Context, token string) (*domain.Identity, bool) {
	if token == "" {
		return nil, false
	}
	sess, u, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		if !domain.IsNotFound(err) {
			log.Warn().Err(err).Msg("session lookup failed")
		}
		return nil, false
	}
	if sess.Expires.Before(s.now()) {
		return nil, false
	}
	return &domain.Identity{ID: u.ID, Email: u.Email, Name: u.Name, Image: u.Image}, true
}

// Login verifies a Google ID token, upserts the user and opens a new session.
func (s *SessionService) Login(ctx context.Context, credential string) (string, domain.User, error) {
	if credential == "" {
		return "", domain.User{}, domain.Invalid("No credential provided")
	}
	if s.idp == nil {
		return "", domain.User{}, domain.ProviderUnavailable("Google sign-in is not configured", "", nil)
	}
	gid, err := s.idp.VerifyIDToken(ctx, credential)
	if err != nil {
		return "", domain.User{}, &domain.Error{Kind: domain.KindUnauthorized, Msg: "Invalid Google credential", Err: err}
	}
	if gid.Email == "" {
		return "", domain.User{}, domain.Invalid("Google account has no email")
	}

	now := s.now().UTC()
	u, err := s.users.UpsertUserByEmail(ctx, domain.User{
		Email:       gid.Email,
		Name:        gid.Name,
		Image:       gid.Picture,
		LastLoginAt: &now,
	})
	if err != nil {
		return "", domain.User{}, err
	}

	tok := uuid.NewString()
	if err := s.sessions.CreateSession(ctx, domain.Session{
		Token:     tok,
		UserID:    u.ID,
		Expires:   now.Add(s.ttl),
		CreatedAt: now,
	}); err != nil {
		return "", domain.User{}, err
	}
	log.Info().Str("user_id", u.ID).Msg("user signed in")
	return tok, u, nil
}

// Logout deletes the session; an unknown token is not an error.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	err := s.sessions.DeleteSession(ctx, token)
	if domain.IsNotFound(err) {
		return nil
	}
	return err
}
