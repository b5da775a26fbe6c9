package users

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockStore is a memory-only Store for tests. It counts calls per operation
// (per id, for GetByID) so tests can assert exactly when a caching layer did
// or did not fall through to the store, and it can be forced to fail every
// operation with FailWith.
type MockStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]User
	err   error

	listAllCalls int
	createCalls  int
	updateCalls  int
	deleteCalls  int
	getByIDCalls map[uuid.UUID]int
}

var _ Store = (*MockStore)(nil)

func NewMockStore() *MockStore {
	return &MockStore{
		users:        make(map[uuid.UUID]User),
		getByIDCalls: make(map[uuid.UUID]int),
	}
}

// FailWith makes every subsequent operation return err. Pass nil to restore
// normal behavior.
func (m *MockStore) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Insert places a user directly in the backing map, bypassing Create and its
// counters. Tests use it to simulate rows changing behind a cache.
func (m *MockStore) Insert(u User) {
	m.mu.Lock()
	m.users[u.ID] = u.clone()
	m.mu.Unlock()
}

// Remove deletes a user directly from the backing map, bypassing Delete and
// its counters.
func (m *MockStore) Remove(id uuid.UUID) {
	m.mu.Lock()
	delete(m.users, id)
	m.mu.Unlock()
}

func (m *MockStore) ListAllCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listAllCalls
}

func (m *MockStore) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

func (m *MockStore) UpdateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateCalls
}

func (m *MockStore) DeleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteCalls
}

func (m *MockStore) GetByIDCalls(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getByIDCalls[id]
}

func (m *MockStore) InitSchema(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *MockStore) ListAll(ctx context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listAllCalls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u.clone())
	}
	return out, nil
}

func (m *MockStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIDCalls[id]++
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	out := u.clone()
	return &out, nil
}

func (m *MockStore) Create(ctx context.Context, params CreateUserParams) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.Email == params.Email {
			return nil, ErrEmailTaken
		}
	}
	u := User{
		ID:    uuid.New(),
		Name:  params.Name,
		Email: params.Email,
		Age:   params.Age,
	}
	m.users[u.ID] = u.clone()
	out := u.clone()
	return &out, nil
}

func (m *MockStore) Update(ctx context.Context, id uuid.UUID, params UpdateUserParams) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	if params.Name != nil && *params.Name != "" {
		u.Name = *params.Name
	}
	if params.Email != nil && *params.Email != "" {
		for other, o := range m.users {
			if other != id && o.Email == *params.Email {
				return nil, ErrEmailTaken
			}
		}
		u.Email = *params.Email
	}
	if params.Age != nil {
		u.Age = params.Age
	}
	m.users[id] = u.clone()
	out := u.clone()
	return &out, nil
}

func (m *MockStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.users[id]
	if ok {
		delete(m.users, id)
	}
	return ok, nil
}
