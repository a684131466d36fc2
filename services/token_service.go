package services

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const matchBindingTTL = 1 * time.Hour

// GuestIdentity is the trusted result of verifying a guest session token.
type GuestIdentity struct {
	PlayerID          string
	Username          string
	ProfileIconNumber int
}

type guestClaims struct {
	jwt.RegisteredClaims
	Username          string `json:"username"`
	ProfileIconNumber string `json:"randomProfileIconNumber"`
}

type matchBindingClaims struct {
	jwt.RegisteredClaims
	MatchID string `json:"match_id"`
}

// TokenService verifies the two independent capabilities every request
// carries: the guest session token minted by the identity service, and the
// short-lived match binding token proving association with one match.
// Guest identities are never minted here — only verified.
type TokenService struct {
	guestSecret   []byte
	bindingSecret []byte
	now           func() time.Time
}

func NewTokenService(guestSecret, bindingSecret string) *TokenService {
	return &TokenService{
		guestSecret:   []byte(guestSecret),
		bindingSecret: []byte(bindingSecret),
		now:           time.Now,
	}
}

// NewTokenServiceFromEnv reads GUEST_SESSION_JWT_SECRET and
// MATCH_BINDING_JWT_SECRET.
func NewTokenServiceFromEnv() (*TokenService, error) {
	guest := os.Getenv("GUEST_SESSION_JWT_SECRET")
	if guest == "" {
		return nil, fmt.Errorf("GUEST_SESSION_JWT_SECRET environment variable not set")
	}
	binding := os.Getenv("MATCH_BINDING_JWT_SECRET")
	if binding == "" {
		return nil, fmt.Errorf("MATCH_BINDING_JWT_SECRET environment variable not set")
	}
	return NewTokenService(guest, binding), nil
}

// VerifyGuestIdentity validates a guest session token and returns the trusted
// player identity. Any parse, signature, or expiry failure is ErrUnauthorized.
func (t *TokenService) VerifyGuestIdentity(token string) (GuestIdentity, error) {
	var claims guestClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (interface{}, error) {
		return t.guestSecret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return GuestIdentity{}, ErrUnauthorized
	}
	if claims.Subject == "" || claims.Username == "" {
		return GuestIdentity{}, ErrUnauthorized
	}
	icon, err := strconv.Atoi(claims.ProfileIconNumber)
	if err != nil || icon < 1 {
		icon = 1
	}
	return GuestIdentity{
		PlayerID:          claims.Subject,
		Username:          claims.Username,
		ProfileIconNumber: icon,
	}, nil
}

// IssueMatchBinding mints a short-lived capability tying the caller to one
// match. Returned from create/find/join so subsequent flip/resolve calls can
// prove their association without a persistent connection.
func (t *TokenService) IssueMatchBinding(matchID string) (string, error) {
	now := t.now()
	claims := matchBindingClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   matchID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(matchBindingTTL)),
		},
		MatchID: matchID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.bindingSecret)
}

// VerifyMatchBinding validates a match binding token and returns the bound
// match id.
func (t *TokenService) VerifyMatchBinding(token string) (string, error) {
	var claims matchBindingClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (interface{}, error) {
		return t.bindingSecret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", ErrUnauthorized
	}
	matchID := claims.MatchID
	if matchID == "" {
		matchID = claims.Subject
	}
	if matchID == "" {
		return "", ErrUnauthorized
	}
	return matchID, nil
}
