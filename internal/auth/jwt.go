// Package auth validates and issues the JWT access tokens that identify the
// user behind a feed request.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type constants for the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Token expiration durations.
const (
	AccessTokenExpiry  = 15 * time.Minute
	RefreshTokenExpiry = 7 * 24 * time.Hour
)

// DefaultLeeway is the clock skew tolerated during validation.
const DefaultLeeway = 30 * time.Second

// Issuer is the iss claim of every token this service signs.
const Issuer = "citypulse"

var (
	// ErrInvalidToken is returned when token validation fails.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrWrongTokenType is returned when a refresh token is presented as an
	// access token.
	ErrWrongTokenType = errors.New("wrong token type")
	// ErrEmptyUserID is returned when userID is empty.
	ErrEmptyUserID = errors.New("userID cannot be empty")
	// ErrMissingBearer is returned when the Authorization header carries no
	// bearer token.
	ErrMissingBearer = errors.New("missing bearer token")
)

// Claims are the application's JWT claims. The subject is the user ID.
type Claims struct {
	jwt.RegisteredClaims
	// HomeCity is the city the client opened the app in, if known.
	HomeCity string `json:"city,omitempty"`
	Type     string `json:"typ"`
}

// JWTService signs with the current secret and accepts tokens signed with
// either the current or the previous one, so secrets can rotate without
// logging everyone out.
type JWTService struct {
	secrets [][]byte
	leeway  time.Duration
	now     func() time.Time
}

// NewJWTService creates a JWTService with a single secret.
func NewJWTService(secret string) *JWTService {
	return NewJWTServiceWithRotation(secret, "")
}

// NewJWTServiceWithRotation creates a JWTService that also accepts tokens
// signed with previousSecret. An empty previousSecret disables rotation.
func NewJWTServiceWithRotation(currentSecret, previousSecret string) *JWTService {
	svc := &JWTService{
		secrets: [][]byte{[]byte(currentSecret)},
		leeway:  DefaultLeeway,
		now:     time.Now,
	}
	if previousSecret != "" {
		svc.secrets = append(svc.secrets, []byte(previousSecret))
	}
	return svc
}

// WithLeeway sets the tolerated clock skew.
func (s *JWTService) WithLeeway(leeway time.Duration) *JWTService {
	s.leeway = leeway
	return s
}

// WithClock replaces the time source used for signing and validation.
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	s.now = now
	return s
}

// GenerateAccessToken creates a 15 minute access token for userID.
func (s *JWTService) GenerateAccessToken(userID, homeCity string) (string, error) {
	return s.generate(userID, homeCity, TokenTypeAccess, AccessTokenExpiry)
}

// GenerateRefreshToken creates a 7 day refresh token for userID.
func (s *JWTService) GenerateRefreshToken(userID string) (string, error) {
	return s.generate(userID, "", TokenTypeRefresh, RefreshTokenExpiry)
}

func (s *JWTService) generate(userID, homeCity, typ string, expiry time.Duration) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
		HomeCity: homeCity,
		Type:     typ,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secrets[0])
}

// ValidateToken parses and validates a token of any type.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	var err error
	for _, secret := range s.secrets {
		var claims *Claims
		if claims, err = s.parse(tokenString, secret); err == nil {
			return claims, nil
		}
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	return nil, ErrInvalidToken
}

// ValidateAccessToken validates tokenString and requires the access type.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return secret, nil
	},
		jwt.WithLeeway(s.leeway),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingBearer
	}
	return token, nil
}
