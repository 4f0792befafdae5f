package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"pharmapos/backend/internal/domain"
)

const tokenIssuer = "pharmapos"

// Authenticator verifies bearer tokens issued for pharmacy staff. Issuing
// tokens to end users belongs to the login service; Sign exists for local
// runs and tests.
type Authenticator struct {
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

type staffClaims struct {
	jwtlib.RegisteredClaims
	PharmacyID string `json:"pharmacy_id"`
	Role       string `json:"role"`
}

func NewAuthenticator(secret string, tokenTTL time.Duration) *Authenticator {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &Authenticator{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (a *Authenticator) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &staffClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}

	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	pharmacyID := strings.TrimSpace(claims.PharmacyID)
	if pharmacyID == "" {
		return domain.Actor{}, errors.New("token carries no pharmacy")
	}
	role, ok := parseRole(claims.Role)
	if !ok {
		return domain.Actor{}, errors.New("token carries an unknown role")
	}
	return domain.Actor{UserID: sub, PharmacyID: pharmacyID, Role: role}, nil
}

// Sign issues a token for actor valid for the configured TTL.
func (a *Authenticator) Sign(actor domain.Actor) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.tokenTTL)
	claims := staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		PharmacyID: actor.PharmacyID,
		Role:       string(actor.Role),
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func parseRole(raw string) (domain.Role, bool) {
	switch role := domain.Role(strings.ToUpper(strings.TrimSpace(raw))); role {
	case domain.RolePharmacist, domain.RoleCashier:
		return role, true
	default:
		return "", false
	}
}
