package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/helpdesk/internal/domain"
	"github.com/prn-tf/helpdesk/internal/events"
	"github.com/prn-tf/helpdesk/internal/metrics"
	"github.com/prn-tf/helpdesk/internal/pkg/crypto"
	"github.com/prn-tf/helpdesk/internal/repository"
)

// maxTokenKeyAttempts bounds retries when a generated key collides with another user's token.
const maxTokenKeyAttempts = 3

// Token resolution sources reported to metrics.
const (
	resolvedFromCache = "cache"
	resolvedFromStore = "store"
	resolveInvalid    = "invalid"
)

// AuthServiceConfig holds the optional collaborators of an AuthService.
type AuthServiceConfig struct {
	// Cache stores token-to-user mappings for Resolve. Nil disables caching.
	Cache repository.Cache

	// CacheTTL is how long a mapping stays cached. 0 disables caching.
	CacheTTL time.Duration

	Publisher events.Publisher
	Metrics   *metrics.Metrics
}

// AuthService exchanges credentials for bearer tokens and resolves tokens to users.
type AuthService struct {
	userRepo  repository.UserRepository
	tokenRepo repository.TokenRepository
	hasher    crypto.PasswordHasher
	cfg       AuthServiceConfig
	logger    zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	userRepo repository.UserRepository,
	tokenRepo repository.TokenRepository,
	hasher crypto.PasswordHasher,
	cfg AuthServiceConfig,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		hasher:    hasher,
		cfg:       cfg,
		logger:    logger.With().Str("service", "auth").Logger(),
	}
}

// LoginInput contains the credentials presented at login.
type LoginInput struct {
	Username string
	Password string
}

// LoginOutput contains the token issued by a successful login.
type LoginOutput struct {
	Token string
	User  *domain.User

	// Created is true when this login minted the user's token.
	Created bool
}

// Login verifies credentials and returns the user's token, creating it on first login.
// An unknown username, a wrong password and an inactive account all yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginOutput, error) {
	v := &ValidationError{}
	if input.Username == "" {
		v.Add("username", msgRequired)
	}
	if input.Password == "" {
		v.Add("password", msgRequired)
	}
	if err := v.errOrNil(); err != nil {
		s.cfg.Metrics.Login(metrics.OutcomeInvalid)
		return nil, err
	}

	user, err := s.authenticate(ctx, input.Username, input.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.cfg.Metrics.Login(metrics.OutcomeFailure)
		} else {
			s.cfg.Metrics.Login(metrics.OutcomeError)
		}
		return nil, err
	}

	token, created, err := s.issueToken(ctx, user)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.cfg.Metrics.Login(metrics.OutcomeFailure)
		} else {
			s.cfg.Metrics.Login(metrics.OutcomeError)
		}
		return nil, err
	}

	s.cfg.Metrics.Login(metrics.OutcomeSuccess)
	s.cfg.Metrics.TokenIssued(created)

	ev := events.New(events.TypeTokenIssued, user.ID, user.Username)
	ev.Created = &created
	events.Emit(ctx, s.cfg.Publisher, s.logger, ev)

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Bool("token_created", created).
		Msg("user logged in")

	return &LoginOutput{Token: token.Key, User: user, Created: created}, nil
}

// authenticate returns the user if the password matches and the account may log in.
func (s *AuthService) authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Error().Err(err).Msg("failed to look up user during login")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		// Spend the same hashing work as for a known user.
		s.verifyDummy(password)
		s.logger.Debug().Str("username", username).Msg("user not found during authentication")
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("stored password hash is unusable")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		s.logger.Debug().Str("username", username).Msg("invalid password during authentication")
		return nil, ErrInvalidCredentials
	}
	if !user.CanAuthenticate() {
		s.logger.Debug().Str("username", username).Msg("inactive user attempted authentication")
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *AuthService) verifyDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("helpdesk-unknown-user")
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to prepare dummy password hash")
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
	}
}

// issueToken returns the user's token, storing a freshly generated key if there is none.
func (s *AuthService) issueToken(ctx context.Context, user *domain.User) (*domain.Token, bool, error) {
	for attempt := 1; attempt <= maxTokenKeyAttempts; attempt++ {
		key, err := crypto.GenerateTokenKey(domain.TokenKeyBytes)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to generate token key")
			return nil, false, fmt.Errorf("%w: failed to generate token key", ErrInternalError)
		}

		token, created, err := s.tokenRepo.GetOrCreate(ctx, user.ID, key)
		switch {
		case err == nil:
			return token, created, nil
		case errors.Is(err, domain.ErrTokenKeyConflict):
			s.logger.Warn().Int("attempt", attempt).Int64("user_id", user.ID).Msg("token key collision, retrying")
			continue
		case errors.Is(err, domain.ErrUserNotFound):
			// Deleted between authentication and issuance.
			return nil, false, ErrInvalidCredentials
		default:
			s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("failed to get or create token")
			return nil, false, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
	}

	s.logger.Error().Int64("user_id", user.ID).Msg("token key collisions exhausted retries")
	return nil, false, fmt.Errorf("%w: %v", ErrInternalError, domain.ErrTokenKeyConflict)
}

// Resolve returns the active user a token key belongs to.
// The key-to-user mapping may come from the cache; the user is always read from the store.
func (s *AuthService) Resolve(ctx context.Context, key string) (*domain.User, error) {
	if err := crypto.ValidateTokenKey(key, domain.TokenKeyBytes); err != nil {
		s.cfg.Metrics.TokenResolved(resolveInvalid)
		return nil, ErrInvalidToken
	}

	keyHash := crypto.ComputeSHA256([]byte(key))
	source := resolvedFromCache
	userID, ok := s.cachedUserID(ctx, keyHash)
	if !ok {
		source = resolvedFromStore
		token, err := s.tokenRepo.GetByKey(ctx, key)
		if err != nil {
			if errors.Is(err, domain.ErrTokenNotFound) {
				s.cfg.Metrics.TokenResolved(resolveInvalid)
				return nil, ErrInvalidToken
			}
			s.logger.Error().Err(err).Msg("failed to look up token")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		userID = token.UserID
		s.cacheUserID(ctx, keyHash, userID)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.forget(ctx, keyHash, userID)
			s.cfg.Metrics.TokenResolved(resolveInvalid)
			return nil, ErrInvalidToken
		}
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to load token owner")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !user.CanAuthenticate() {
		s.cfg.Metrics.TokenResolved(resolveInvalid)
		return nil, ErrInvalidToken
	}

	s.cfg.Metrics.TokenResolved(source)
	return user, nil
}

func (s *AuthService) cachingEnabled() bool {
	return s.cfg.Cache != nil && s.cfg.CacheTTL > 0
}

func (s *AuthService) cachedUserID(ctx context.Context, keyHash string) (int64, bool) {
	if !s.cachingEnabled() {
		return 0, false
	}
	data, err := s.cfg.Cache.Get(ctx, repository.CacheKeys.TokenUser(keyHash))
	if err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Debug().Err(err).Msg("token cache read failed")
		}
		return 0, false
	}
	userID, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, false
	}
	return userID, true
}

func (s *AuthService) cacheUserID(ctx context.Context, keyHash string, userID int64) {
	if !s.cachingEnabled() {
		return
	}
	if err := s.cfg.Cache.Set(ctx, repository.CacheKeys.TokenUser(keyHash), []byte(strconv.FormatInt(userID, 10)), s.cfg.CacheTTL); err != nil {
		s.logger.Debug().Err(err).Msg("token cache write failed")
		return
	}
	_ = s.cfg.Cache.Set(ctx, repository.CacheKeys.UserToken(userID), []byte(keyHash), s.cfg.CacheTTL)
}

func (s *AuthService) forget(ctx context.Context, keyHash string, userID int64) {
	if s.cfg.Cache == nil {
		return
	}
	_ = s.cfg.Cache.Delete(ctx, repository.CacheKeys.TokenUser(keyHash), repository.CacheKeys.UserToken(userID))
}
