package goGuard

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeStore is an in-memory CredentialStore and AuditStore.
type fakeStore struct {
	mu     sync.Mutex
	calls  int
	nextID int
	users  map[string]*User
	tokens map[string]PersistentToken // by token string
	events map[AuditStream][]AuditEvent
	fail   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  map[string]*User{},
		tokens: map[string]PersistentToken{},
		events: map[AuditStream][]AuditEvent{},
	}
}

func (s *fakeStore) enter() error {
	s.calls++
	return s.fail
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

func (s *fakeStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, notFound("user")
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFound("user")
}

func (s *fakeStore) GetUserByProvider(_ context.Context, provider, providerID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if u.Provider == provider && u.ProviderID == providerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFound("user")
}

func (s *fakeStore) CreateUser(_ context.Context, in NewUser) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return nil, err
	}
	s.nextID++
	u := &User{
		ID:           fmt.Sprintf("u%d", s.nextID),
		DisplayName:  in.DisplayName,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		RevokeBefore: in.RevokeBefore,
		Enabled:      in.Enabled,
		Provider:     in.Provider,
		ProviderID:   in.ProviderID,
		CreatedAt:    in.RevokeBefore,
	}
	if in.Confirmed {
		at := in.RevokeBefore
		u.ConfirmedAt = &at
	}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

// putConfirmed seeds an enabled, confirmed local account.
func (s *fakeStore) putConfirmed(id, email, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := time.Unix(0, 0)
	s.users[id] = &User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		ConfirmedAt:  &at,
		RevokeBefore: at,
		Enabled:      true,
	}
}

func (s *fakeStore) update(id string, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	u, ok := s.users[id]
	if !ok {
		return notFound("user")
	}
	fn(u)
	return nil
}

func (s *fakeStore) UpdatePassword(_ context.Context, id, hash string, revokeBefore time.Time) error {
	return s.update(id, func(u *User) {
		u.PasswordHash = hash
		u.RevokeBefore = revokeBefore
	})
}

func (s *fakeStore) SetEnabled(_ context.Context, id string, enabled bool) error {
	return s.update(id, func(u *User) { u.Enabled = enabled })
}

func (s *fakeStore) SetRevokeBefore(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(u *User) { u.RevokeBefore = at })
}

func (s *fakeStore) ConfirmUser(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(u *User) { u.ConfirmedAt = &at })
}

func (s *fakeStore) RevokeBeforeAll(context.Context) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(s.users))
	for id, u := range s.users {
		out[id] = u.RevokeBefore
	}
	return out, nil
}

func (s *fakeStore) PurgeUnconfirmed(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return 0, err
	}
	var n int64
	for id, u := range s.users {
		if u.ConfirmedAt == nil && u.CreatedAt.Before(before) {
			delete(s.users, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CreatePersistentToken(_ context.Context, t PersistentToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	s.nextID++
	t.ID = fmt.Sprintf("pt%d", s.nextID)
	s.tokens[t.Token] = t
	return nil
}

func (s *fakeStore) ReplacePersistentToken(_ context.Context, userID, oldToken, newToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return false, err
	}
	row, ok := s.tokens[oldToken]
	if !ok || row.UserID != userID {
		return false, nil
	}
	delete(s.tokens, oldToken)
	row.Token = newToken
	s.tokens[newToken] = row
	return true, nil
}

func (s *fakeStore) DeletePersistentToken(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	if row, ok := s.tokens[token]; ok && row.UserID == userID {
		delete(s.tokens, token)
	}
	return nil
}

func (s *fakeStore) DeletePersistentTokenByID(_ context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return false, err
	}
	for tok, row := range s.tokens {
		if row.ID == id && row.UserID == userID {
			delete(s.tokens, tok)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) DeletePersistentTokens(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	for tok, row := range s.tokens {
		if row.UserID == userID {
			delete(s.tokens, tok)
		}
	}
	return nil
}

func (s *fakeStore) ListPersistentTokens(_ context.Context, userID string) ([]PersistentToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return nil, err
	}
	var out []PersistentToken
	for _, row := range s.tokens {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *fakeStore) tokenCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.tokens {
		if row.UserID == userID {
			n++
		}
	}
	return n
}

func (s *fakeStore) InsertEvents(_ context.Context, stream AuditStream, events []AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[stream] = append(s.events[stream], events...)
	return nil
}

func (s *fakeStore) QueryEvents(_ context.Context, stream AuditStream, from, to time.Time, limit int) ([]AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for _, ev := range s.events[stream] {
		if ev.Timestamp.Before(from) || ev.Timestamp.After(to) {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type capturingNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (n *capturingNotifier) SendConfirmation(_ context.Context, u *User, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = map[string]string{}
	}
	n.tokens[u.Email] = token
	return nil
}
