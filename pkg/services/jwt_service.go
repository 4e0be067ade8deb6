package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const tokenIssuer = "storycanvas-api"

// Claims identifies the workspace a bearer token belongs to. A workspace
// plays the role browser local storage had: one live session plus its archive.
type Claims struct {
	WorkspaceID string `json:"workspace_id"`
	jwt.RegisteredClaims
}

// TokenService signs and validates workspace tokens with a shared HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// NewWorkspace mints a fresh workspace ID and a token for it.
func (s *TokenService) NewWorkspace() (string, string, time.Time, error) {
	workspaceID := uuid.NewString()
	token, expires, err := s.GenerateToken(workspaceID)
	return workspaceID, token, expires, err
}

// GenerateToken issues a token for an existing workspace, e.g. to renew one.
func (s *TokenService) GenerateToken(workspaceID string) (string, time.Time, error) {
	now := s.now()
	expirationTime := now.Add(s.ttl)

	claims := &Claims{
		WorkspaceID: workspaceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   workspaceID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		log.Errorf("Failed to sign JWT token for workspace %s: %v", workspaceID, err)
		return "", time.Time{}, err
	}

	log.Debugf("Generated JWT for workspace %s, expires at %s", workspaceID, expirationTime.Format(time.RFC3339))
	return tokenString, expirationTime, nil
}

// ValidateToken validates a JWT token and returns its claims.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		log.Warnf("JWT validation failed: %v", err)
		return nil, err
	}

	if !token.Valid || claims.WorkspaceID == "" {
		log.Warn("Invalid JWT token.")
		return nil, errors.New("token carries no workspace")
	}
	return claims, nil
}
