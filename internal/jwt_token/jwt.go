package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"remit/pkg/domain"
	dErrors "remit/pkg/domain-errors"
)

// Claims represents the caller-identity token. Subject carries the account
// in hex form.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	clock      func() time.Time
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		clock:      time.Now,
	}
}

// GenerateAccessToken issues a token for account. The auth service normally
// does this; the ledger uses it for tests and local tooling.
func (s *JWTService) GenerateAccessToken(account domain.AccountID, expiresIn time.Duration) (string, error) {
	now := s.clock()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.Hex(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.clock),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// Caller validates the token and returns the account it was issued to.
// The zero account is never a valid caller.
func (s *JWTService) Caller(tokenString string) (domain.AccountID, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return domain.AccountID{}, err
	}
	account, err := domain.ParseAccountID(claims.Subject)
	if err != nil || account.IsZero() {
		return domain.AccountID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	return account, nil
}
