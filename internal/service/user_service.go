package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/helpdesk/internal/domain"
	"github.com/prn-tf/helpdesk/internal/events"
	"github.com/prn-tf/helpdesk/internal/lock"
	"github.com/prn-tf/helpdesk/internal/metrics"
	"github.com/prn-tf/helpdesk/internal/pkg/crypto"
	"github.com/prn-tf/helpdesk/internal/repository"
)

const usernameLockTTL = 10 * time.Second

// UserServiceConfig holds the optional collaborators and policy of a UserService.
type UserServiceConfig struct {
	// Locker serialises claims on the same username. Nil disables locking.
	Locker lock.Locker

	// Cache holds token-to-user mappings written by AuthService.
	// Entries of a deleted user are evicted. Nil disables eviction.
	Cache repository.Cache

	Publisher events.Publisher
	Metrics   *metrics.Metrics

	// DefaultIsActive is the active flag given to new accounts.
	DefaultIsActive bool

	// MinPasswordLength is an optional extra password policy. 0 disables it.
	MinPasswordLength int
}

// UserService handles user management operations.
// Raw passwords are hashed before they reach the repository and are never returned.
type UserService struct {
	userRepo repository.UserRepository
	hasher   crypto.PasswordHasher
	cfg      UserServiceConfig
	logger   zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.UserRepository, hasher crypto.PasswordHasher, cfg UserServiceConfig, logger zerolog.Logger) *UserService {
	if cfg.Locker == nil {
		cfg.Locker = lock.NewNoOpLocker()
	}
	return &UserService{
		userRepo: userRepo,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger.With().Str("service", "user").Logger(),
	}
}

// CreateUserInput contains the data needed to create a new user.
type CreateUserInput struct {
	Username  string
	Password  string
	Email     string
	FirstName string
	LastName  string
}

// Create creates a new user account.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	if err := s.validateCreateInput(input); err != nil {
		return nil, err
	}

	passwordHash, err := s.hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	var user *domain.User
	err = lock.WithLock(ctx, s.cfg.Locker, lock.Keys.Username(input.Username), usernameLockTTL, func() error {
		exists, err := s.userRepo.ExistsByUsername(ctx, input.Username)
		if err != nil {
			s.logger.Error().Err(err).Str("username", input.Username).Msg("failed to check username existence")
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		if exists {
			return NewValidationError("username", msgUsernameTaken)
		}

		user = domain.NewUser(input.Username, input.Email, input.FirstName, input.LastName, passwordHash, s.cfg.DefaultIsActive)
		if err := s.userRepo.Create(ctx, user); err != nil {
			return s.mapWriteError(err, input.Username, "failed to create user")
		}
		return nil
	})
	if err != nil {
		return nil, s.mapLockError(ctx, err, input.Username)
	}

	s.cfg.Metrics.UserCreated()
	events.Emit(ctx, s.cfg.Publisher, s.logger, events.New(events.TypeUserCreated, user.ID, user.Username))

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Bool("is_active", user.IsActive).
		Msg("user created")

	return user, nil
}

// UpdateUserInput contains the fields of a partial update. Nil fields are left unchanged.
type UpdateUserInput struct {
	Username  *string
	Password  *string
	Email     *string
	FirstName *string
	LastName  *string
}

// Update applies a partial update to a user.
// A new password is hashed and replaces the stored hash before the other fields are merged.
func (s *UserService) Update(ctx context.Context, id int64, input UpdateUserInput) (*domain.User, error) {
	return s.update(ctx, id, input, false)
}

// Replace is Update with username and password required.
func (s *UserService) Replace(ctx context.Context, id int64, input UpdateUserInput) (*domain.User, error) {
	return s.update(ctx, id, input, true)
}

func (s *UserService) update(ctx context.Context, id int64, input UpdateUserInput, full bool) (*domain.User, error) {
	user, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.validateUpdateInput(input, full); err != nil {
		return nil, err
	}

	var passwordHash string
	if input.Password != nil {
		if passwordHash, err = s.hashPassword(*input.Password); err != nil {
			return nil, err
		}
	}

	apply := func() error {
		if input.Username != nil && *input.Username != user.Username {
			exists, err := s.userRepo.ExistsByUsername(ctx, *input.Username)
			if err != nil {
				s.logger.Error().Err(err).Str("username", *input.Username).Msg("failed to check username existence")
				return fmt.Errorf("%w: %v", ErrInternalError, err)
			}
			if exists {
				return NewValidationError("username", msgUsernameTaken)
			}
		}

		var changed []string
		if input.Password != nil {
			user.PasswordHash = passwordHash
			changed = append(changed, "password")
		}

		changed = append(user.Apply(domain.UserPatch{
			Username:  input.Username,
			Email:     input.Email,
			FirstName: input.FirstName,
			LastName:  input.LastName,
		}), changed...)
		if len(changed) == 0 {
			return nil
		}

		if err := s.userRepo.Update(ctx, user); err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return s.mapWriteError(err, user.Username, "failed to update user")
		}
		if fresh, err := s.userRepo.GetByID(ctx, user.ID); err == nil {
			user = fresh
		}

		events.Emit(ctx, s.cfg.Publisher, s.logger, userUpdated(user, changed))
		s.logger.Info().
			Int64("user_id", user.ID).
			Strs("fields", changed).
			Msg("user updated")
		return nil
	}

	if input.Username != nil && *input.Username != user.Username {
		err = lock.WithLock(ctx, s.cfg.Locker, lock.Keys.Username(*input.Username), usernameLockTTL, apply)
	} else {
		err = apply()
	}
	if err != nil {
		return nil, s.mapLockError(ctx, err, ptrValue(input.Username))
	}
	return user, nil
}

func userUpdated(user *domain.User, fields []string) events.Event {
	ev := events.New(events.TypeUserUpdated, user.ID, user.Username)
	ev.Fields = fields
	return ev
}

// Get retrieves a user by ID.
func (s *UserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	return s.get(ctx, id)
}

func (s *UserService) get(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error().Err(err).Int64("user_id", id).Msg("failed to get user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return user, nil
}

// ListUsersInput contains pagination for List. A zero Limit returns up to
// repository.MaxListLimit users.
type ListUsersInput struct {
	Limit  int
	Offset int
}

// ListUsersOutput contains a page of users, newest first.
type ListUsersOutput struct {
	Users      []*domain.User
	TotalCount int64
	HasMore    bool
}

// List returns users ordered by date joined, newest first.
func (s *UserService) List(ctx context.Context, input ListUsersInput) (*ListUsersOutput, error) {
	result, err := s.userRepo.List(ctx, repository.ListOptions{
		Limit:  input.Limit,
		Offset: input.Offset,
	}.Normalize())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return &ListUsersOutput{
		Users:      result.Items,
		TotalCount: result.TotalCount,
		HasMore:    result.HasMore,
	}, nil
}

// Delete removes a user. The user's token is removed with it.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	user, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.userRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return ErrUserNotFound
		}
		s.logger.Error().Err(err).Int64("user_id", id).Msg("failed to delete user")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.evictToken(ctx, id)
	s.cfg.Metrics.UserDeleted()
	events.Emit(ctx, s.cfg.Publisher, s.logger, events.New(events.TypeUserDeleted, user.ID, user.Username))

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Msg("user deleted")

	return nil
}

// evictToken drops the cached token mapping of a user, if any.
func (s *UserService) evictToken(ctx context.Context, userID int64) {
	if s.cfg.Cache == nil {
		return
	}
	indexKey := repository.CacheKeys.UserToken(userID)
	keyHash, err := s.cfg.Cache.Get(ctx, indexKey)
	if err != nil {
		return
	}
	if err := s.cfg.Cache.Delete(ctx, repository.CacheKeys.TokenUser(string(keyHash)), indexKey); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("failed to evict cached token")
	}
}

// mapWriteError translates repository write errors.
func (s *UserService) mapWriteError(err error, username, msg string) error {
	if errors.Is(err, domain.ErrUserAlreadyExists) {
		return NewValidationError("username", msgUsernameTaken)
	}
	s.logger.Error().Err(err).Str("username", username).Msg(msg)
	return fmt.Errorf("%w: %v", ErrInternalError, err)
}

func (s *UserService) hashPassword(raw string) (string, error) {
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return "", fmt.Errorf("%w: failed to hash password", ErrInternalError)
	}
	return hash, nil
}

// mapLockError passes service errors through and wraps lock failures.
// When the username lock stays contended the name is usually being taken by
// a concurrent request, so the store is asked once more before giving up.
func (s *UserService) mapLockError(ctx context.Context, err error, username string) error {
	if errors.Is(err, lock.ErrNotAcquired) {
		if username != "" {
			if exists, existsErr := s.userRepo.ExistsByUsername(ctx, username); existsErr == nil && exists {
				return NewValidationError("username", msgUsernameTaken)
			}
		}
		s.logger.Warn().Str("username", username).Msg("username lock not acquired")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	var verr *ValidationError
	if errors.As(err, &verr) || errors.Is(err, ErrInternalError) || errors.Is(err, ErrNotFound) {
		return err
	}
	s.logger.Error().Err(err).Msg("failed to acquire username lock")
	return fmt.Errorf("%w: %v", ErrInternalError, err)
}

func (s *UserService) validateCreateInput(input CreateUserInput) error {
	v := &ValidationError{}
	if input.Username == "" {
		v.Add("username", msgRequired)
	} else {
		validateUsername(v, input.Username)
	}
	if input.Password == "" {
		v.Add("password", msgRequired)
	} else {
		validatePassword(v, input.Password, s.cfg.MinPasswordLength)
	}
	validateEmail(v, input.Email)
	validateName(v, "first_name", input.FirstName)
	validateName(v, "last_name", input.LastName)
	return v.errOrNil()
}

func (s *UserService) validateUpdateInput(input UpdateUserInput, full bool) error {
	v := &ValidationError{}
	switch {
	case input.Username != nil:
		validateUsername(v, *input.Username)
	case full:
		v.Add("username", msgRequired)
	}
	switch {
	case input.Password != nil:
		validatePassword(v, *input.Password, s.cfg.MinPasswordLength)
	case full:
		v.Add("password", msgRequired)
	}
	if input.Email != nil {
		validateEmail(v, *input.Email)
	}
	if input.FirstName != nil {
		validateName(v, "first_name", *input.FirstName)
	}
	if input.LastName != nil {
		validateName(v, "last_name", *input.LastName)
	}
	return v.errOrNil()
}

func ptrValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
