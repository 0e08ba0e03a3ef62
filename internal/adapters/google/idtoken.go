package google

import (
	"context"
	"fmt"

	"google.golang.org/api/idtoken"

	"reviewdesk/internal/domain"
)

// IDTokens verifies Google Sign-In credentials issued for one client id.
type IDTokens struct {
	audience string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewIDTokens(clientID string) *IDTokens {
	return &IDTokens{audience: clientID, validate: idtoken.Validate}
}

func (v *IDTokens) VerifyIDToken(ctx context.Context, credential string) (domain.GoogleIdentity, error) {
	if v.audience == "" {
		return domain.GoogleIdentity{}, fmt.Errorf("google client id is not configured")
	}
	p, err := v.validate(ctx, credential, v.audience)
	if err != nil {
		return domain.GoogleIdentity{}, fmt.Errorf("validate id token: %w", err)
	}
	return identityFromClaims(p.Claims)
}

func identityFromClaims(c map[string]interface{}) (domain.GoogleIdentity, error) {
	str := func(k string) string {
		s, _ := c[k].(string)
		return s
	}
	if v, ok := c["email_verified"].(bool); ok && !v {
		return domain.GoogleIdentity{}, fmt.Errorf("google email is not verified")
	}
	return domain.GoogleIdentity{Email: str("email"), Name: str("name"), Picture: str("picture")}, nil
}
