package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/prn-tf/helpdesk/internal/domain"
	"github.com/prn-tf/helpdesk/internal/events"
	"github.com/prn-tf/helpdesk/internal/repository"
)

// MockUserRepository is a mock implementation of repository.UserRepository.
type MockUserRepository struct {
	mu        sync.Mutex
	users     map[int64]*domain.User
	nextID    int64
	createErr error
	getErr    error
	updateErr error

	// beforeUpdate runs at the start of Update, standing in for a concurrent writer.
	beforeUpdate func()

	// tokens is cleared of the user's token on Delete, like the store's cascade.
	tokens *MockTokenRepository
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:  make(map[int64]*domain.User),
		nextID: 1,
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, u := range m.users {
		if u.Username == user.Username {
			return domain.ErrUserAlreadyExists
		}
	}
	user.ID = m.nextID
	m.nextID++
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) Update(ctx context.Context, user *domain.User) error {
	if m.beforeUpdate != nil {
		m.beforeUpdate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	current, ok := m.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	for _, u := range m.users {
		if u.ID != user.ID && u.Username == user.Username {
			return domain.ErrUserAlreadyExists
		}
	}
	stored := *current
	stored.Username = user.Username
	stored.Email = user.Email
	stored.FirstName = user.FirstName
	stored.LastName = user.LastName
	stored.PasswordHash = user.PasswordHash
	m.users[user.ID] = &stored
	return nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(m.users, id)
	if m.tokens != nil {
		m.tokens.deleteUser(id)
	}
	return nil
}

func (m *MockUserRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*domain.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].DateJoined.Equal(all[j].DateJoined) {
			return all[i].DateJoined.After(all[j].DateJoined)
		}
		return all[i].ID > all[j].ID
	})

	total := int64(len(all))
	start := min(opts.Offset, len(all))
	end := min(start+opts.Limit, len(all))
	return &repository.ListResult[domain.User]{
		Items:      all[start:end],
		TotalCount: total,
		HasMore:    int64(end) < total,
	}, nil
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// MockTokenRepository is a mock implementation of repository.TokenRepository.
type MockTokenRepository struct {
	mu        sync.Mutex
	byKey     map[string]*domain.Token
	users     *MockUserRepository
	conflicts int // number of GetOrCreate calls that report a key conflict
	err       error
}

func NewMockTokenRepository(users *MockUserRepository) *MockTokenRepository {
	m := &MockTokenRepository{
		byKey: make(map[string]*domain.Token),
		users: users,
	}
	if users != nil {
		users.tokens = m
	}
	return m
}

func (m *MockTokenRepository) GetOrCreate(ctx context.Context, userID int64, key string) (*domain.Token, bool, error) {
	if m.users != nil {
		if _, err := m.users.GetByID(ctx, userID); err != nil {
			return nil, false, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	for _, t := range m.byKey {
		if t.UserID == userID {
			cp := *t
			return &cp, false, nil
		}
	}
	if m.conflicts > 0 {
		m.conflicts--
		return nil, false, domain.ErrTokenKeyConflict
	}
	if _, taken := m.byKey[key]; taken {
		return nil, false, domain.ErrTokenKeyConflict
	}
	t := domain.NewToken(key, userID)
	m.byKey[key] = t
	cp := *t
	return &cp, true, nil
}

func (m *MockTokenRepository) GetByKey(ctx context.Context, key string) (*domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.byKey[key]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockTokenRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}

func (m *MockTokenRepository) deleteUser(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, t := range m.byKey {
		if t.UserID == userID {
			delete(m.byKey, k)
		}
	}
}

// plainHasher is a fast, reversible stand-in for a real password hasher.
type plainHasher struct {
	mu       sync.Mutex
	verifies int
}

func (h *plainHasher) Hash(raw string) (string, error) {
	return "plain$" + raw, nil
}

func (h *plainHasher) Verify(raw, encoded string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	if len(encoded) < 6 || encoded[:6] != "plain$" {
		return false, errors.New("unknown hash format")
	}
	return encoded[6:] == raw, nil
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func (p *recordingPublisher) last() events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func strPtr(s string) *string { return &s }
