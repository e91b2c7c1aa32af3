package auth

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agentmesh/a2a-core/pkg/service"
)

// Service issues and verifies the bearer tokens the HTTP transports
// accept. Tokens are HMAC-signed JWTs whose subject is the principal.
type Service struct {
	mu            sync.RWMutex
	tokens        map[string]*TokenInfo
	refreshTokens map[string]string
	rateLimiter   *RateLimiter
	signingKey    []byte
	tokenTTL      time.Duration
}

// TokenInfo represents a JWT token and its metadata
type TokenInfo struct {
	Token        string
	Subject      string
	ExpiresAt    time.Time
	RefreshToken string
	Scheme       string
}

type ServiceOption func(*Service)

// WithTokenTTL overrides the default one hour token lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.tokenTTL = ttl
	}
}

// WithRateLimit overrides the default 100 requests per minute.
func WithRateLimit(rate int64, interval time.Duration) ServiceOption {
	return func(s *Service) {
		s.rateLimiter = NewRateLimiter(rate, interval)
	}
}

// NewService creates an authentication service around the signing key.
func NewService(signingKey []byte, opts ...ServiceOption) *Service {
	svc := &Service{
		tokens:        make(map[string]*TokenInfo),
		refreshTokens: make(map[string]string),
		rateLimiter:   NewRateLimiter(100, time.Minute),
		signingKey:    signingKey,
		tokenTTL:      time.Hour,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

func (s *Service) getSigningKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.signingKey, nil
}

/*
Authenticate verifies the request's bearer token and returns the
principal it was issued to. An absent Authorization header is not an
error; it returns the empty principal so anonymous calls proceed and
the operations that demand authentication reject them individually.
*/
func (s *Service) Authenticate(req *http.Request) (string, error) {
	if !s.rateLimiter.Allow() {
		return "", fmt.Errorf("rate limit exceeded")
	}

	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return "", nil
	}

	return s.VerifyToken(strings.TrimPrefix(authHeader, "Bearer "))
}

// VerifyToken validates a raw bearer token and returns its subject.
func (s *Service) VerifyToken(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, s.getSigningKey)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("token expired")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("token has no subject")
	}

	return subject, nil
}

// GenerateToken issues a signed token pair for the principal.
func (s *Service) GenerateToken(scheme string, subject string, extra jwt.MapClaims) (*TokenInfo, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(s.tokenTTL).Unix(),
	}
	for key, value := range extra {
		claims[key] = value
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(s.signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	})
	refreshTokenStr, err := refreshToken.SignedString(s.signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	tokenInfo := &TokenInfo{
		Token:        tokenStr,
		Subject:      subject,
		ExpiresAt:    time.Now().Add(s.tokenTTL),
		RefreshToken: refreshTokenStr,
		Scheme:       scheme,
	}

	s.mu.Lock()
	s.tokens[tokenStr] = tokenInfo
	s.refreshTokens[refreshTokenStr] = tokenStr
	s.mu.Unlock()

	return tokenInfo, nil
}

// RefreshToken exchanges a refresh token for a fresh token pair.
func (s *Service) RefreshToken(refreshToken string) (*TokenInfo, error) {
	s.mu.RLock()
	oldToken, exists := s.refreshTokens[refreshToken]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("invalid refresh token")
	}

	token, err := jwt.Parse(oldToken, s.getSigningKey, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("failed to parse old token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return s.GenerateToken("Bearer", subject, nil)
}

// RevokeToken revokes a token and its associated refresh token
func (s *Service) RevokeToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokenInfo, exists := s.tokens[token]
	if !exists {
		return fmt.Errorf("token not found")
	}

	delete(s.tokens, token)
	delete(s.refreshTokens, tokenInfo.RefreshToken)
	return nil
}

// GetTokenInfo retrieves token information
func (s *Service) GetTokenInfo(token string) (*TokenInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokenInfo, exists := s.tokens[token]
	if !exists {
		return nil, fmt.Errorf("token not found")
	}

	return tokenInfo, nil
}

/*
Middleware authenticates each request and stashes the principal on the
request context for the call context to pick up. Requests with a bad
token are rejected; requests with no token pass through anonymous.
*/
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := s.Authenticate(r)
		if err != nil {
			status := http.StatusUnauthorized
			if strings.Contains(err.Error(), "rate limit") {
				status = http.StatusTooManyRequests
			}
			http.Error(w, err.Error(), status)
			return
		}

		if principal != "" {
			r = r.WithContext(service.WithPrincipal(r.Context(), principal))
		}

		next.ServeHTTP(w, r)
	})
}
