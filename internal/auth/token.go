package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrTokenInvalid = errors.New("invalid or expired token")

// AccessClaims is the claim bundle carried by access tokens. The subject
// of the embedded registered claims holds the user id.
type AccessClaims struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	UserName string `json:"userName"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies the two token kinds. Access and refresh
// tokens use independent secrets and lifetimes so a leaked access token
// has a short blast radius while refresh tokens keep sessions alive.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}

	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

func (i *Issuer) IssueAccessToken(userID, email, fullName, userName string) (string, error) {
	now := time.Now().UTC()
	claims := AccessClaims{
		Email:    email,
		FullName: fullName,
		UserName: userName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return encoded, nil
}

// IssueRefreshToken signs a refresh token carrying only the user id. The
// jti claim makes every issued token distinct, so rotation always
// supersedes the stored value even within the same second.
func (i *Issuer) IssueRefreshToken(userID string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(i.refreshTTL)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return encoded, expiresAt, nil
}

func (i *Issuer) VerifyAccessToken(tokenStr string) (AccessClaims, error) {
	var claims AccessClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (any, error) {
		return i.accessSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.Subject == "" {
		return AccessClaims{}, ErrTokenInvalid
	}

	return claims, nil
}

// VerifyRefreshToken checks signature and expiry only; the caller still
// has to compare the presented token against the one stored on the user
// record before trusting it.
func (i *Issuer) VerifyRefreshToken(tokenStr string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (any, error) {
		return i.refreshSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrTokenInvalid
	}

	return claims.Subject, nil
}
