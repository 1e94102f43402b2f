package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dualcast/backend/internal/models"
)

// ErrNotFound is returned by Store lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract for principals and refresh tokens.
// ConsumeRefreshToken is the critical primitive: it must remove and return the
// record in one conditional operation, so that of two concurrent consumers of
// the same token exactly one observes the record.
type Store interface {
	CreateUser(ctx context.Context, email, passwordHash, fullName string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	ConsumeRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, tokenHash string) error
	DeleteUserRefreshTokens(ctx context.Context, userID uuid.UUID) error
	TrimUserRefreshTokens(ctx context.Context, userID uuid.UUID, keep int) error
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// TokenPair is an issued access/refresh credential pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Service is the token authority: it issues, verifies, rotates and revokes
// credentials for principals. Multiple concurrent sessions per user are
// permitted, bounded by maxSessions (oldest evicted first).
type Service struct {
	store       Store
	jwt         *JWTService
	gen         TokenGenerator
	clock       Clock
	refreshTTL  time.Duration
	maxSessions int
	logger      *zap.Logger
}

// NewService creates a token authority.
func NewService(store Store, jwt *JWTService, refreshTTL time.Duration, maxSessions int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       store,
		jwt:         jwt,
		gen:         DefaultTokenGenerator{},
		clock:       systemClock{},
		refreshTTL:  refreshTTL,
		maxSessions: maxSessions,
		logger:      logger,
	}
}

// IssuePair issues a new access/refresh pair for the user. Other outstanding
// sessions stay valid.
func (s *Service) IssuePair(ctx context.Context, user *models.User) (TokenPair, error) {
	access, err := s.jwt.Generate(user.ID, user.Email)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, hash, err := s.gen.New()
	if err != nil {
		return TokenPair{}, err
	}
	record := &models.RefreshToken{
		TokenHash: hash,
		UserID:    user.ID,
		ExpiresAt: s.clock.Now().Add(s.refreshTTL),
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.SaveRefreshToken(ctx, record); err != nil {
		return TokenPair{}, err
	}
	if s.maxSessions > 0 {
		if err := s.store.TrimUserRefreshTokens(ctx, user.ID, s.maxSessions); err != nil {
			s.logger.Warn("trim refresh tokens failed", zap.Error(err), zap.String("user_id", user.ID.String()))
		}
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess validates an access token locally (no I/O).
func (s *Service) VerifyAccess(token string) (*Claims, error) {
	return s.jwt.Validate(token)
}

// Rotate consumes a refresh token and issues a replacement pair. The consume is
// a single conditional store operation: under two concurrent Rotate calls with
// the same token exactly one succeeds, the other gets ErrInvalidToken. An
// expired token is consumed and reported as ErrExpiredToken.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (*models.User, TokenPair, error) {
	record, err := s.store.ConsumeRefreshToken(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidToken
		}
		return nil, TokenPair{}, err
	}
	if s.clock.Now().After(record.ExpiresAt) {
		// Already removed by the consume; reuse is impossible either way.
		return nil, TokenPair{}, ErrExpiredToken
	}
	user, err := s.store.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidToken
		}
		return nil, TokenPair{}, err
	}
	pair, err := s.IssuePair(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// RevokeOne removes a single refresh token (logout). Idempotent.
func (s *Service) RevokeOne(ctx context.Context, refreshToken string) error {
	return s.store.DeleteRefreshToken(ctx, HashToken(refreshToken))
}

// RevokeAll clears every outstanding refresh token for the user
// (logout on all devices).
func (s *Service) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return s.store.DeleteUserRefreshTokens(ctx, userID)
}

// SweepExpired periodically evicts expired refresh tokens until ctx is done.
func (s *Service) SweepExpired(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.DeleteExpiredRefreshTokens(ctx, s.clock.Now())
			if err != nil {
				s.logger.Warn("refresh token sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("expired refresh tokens evicted", zap.Int64("count", n))
			}
		}
	}
}
