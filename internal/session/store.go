package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"finetune-console/pkg/api"
)

var ErrUnauthenticated = errors.New("not logged in")

type State int

const (
	StateInit State = iota
	StateResolving
	StateResolved
	StateUnresolved
	StateCleared
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateUnresolved:
		return "unresolved"
	case StateCleared:
		return "cleared"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// UserFetcher asks the backend who the current credential belongs to.
type UserFetcher interface {
	CurrentUser(ctx context.Context) (api.User, error)
}

// Store holds the credential and the identity it authenticates. Both are set
// together and cleared together.
type Store struct {
	mu        sync.RWMutex
	persister Persister
	state     State
	cred      *api.Credential
	user      *api.User

	settled    chan struct{}
	settleOnce sync.Once
}

func NewStore(persister Persister) (*Store, error) {
	s := &Store{
		persister: persister,
		state:     StateInit,
		settled:   make(chan struct{}),
	}

	entries, err := persister.Load()
	if err != nil {
		return nil, fmt.Errorf("error loading persisted session: %w", err)
	}

	token := entries[TokenKey]
	if token == "" {
		return s, nil
	}

	cred := api.Credential{AccessToken: token, TokenType: entries[TokenTypeKey]}
	s.cred = &cred

	if raw := entries[UserKey]; raw != "" {
		var user api.User
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			slog.Warn("ignoring unreadable persisted user", "error", err)
		} else {
			s.user = &user
		}
	}

	return s, nil
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) Credential() (api.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return api.Credential{}, false
	}
	return *s.cred, true
}

// User returns the identity once the session is resolved. A persisted user whose
// credential has not been confirmed by the backend is not returned.
func (s *Store) User() (api.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateResolved || s.user == nil {
		return api.User{}, false
	}
	return *s.user, true
}

// Resolve confirms a persisted credential against the backend in the
// background. Until it finishes the store reports StateResolving. A failed
// resolution clears the session without surfacing the error.
func (s *Store) Resolve(ctx context.Context, fetcher UserFetcher) {
	s.mu.Lock()
	if s.state != StateInit {
		s.mu.Unlock()
		return
	}
	if s.cred == nil {
		s.state = StateUnresolved
		s.mu.Unlock()
		s.settle()
		return
	}
	s.state = StateResolving
	token := s.cred.AccessToken
	s.mu.Unlock()

	go func() {
		defer s.settle()

		user, err := fetcher.CurrentUser(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()

		// A login or logout happened while resolving; that decision wins.
		if s.state != StateResolving || s.cred == nil || s.cred.AccessToken != token {
			return
		}

		if err != nil {
			slog.Info("persisted session could not be resolved, clearing it", "error", err)
			s.clearLocked()
			s.state = StateUnresolved
			return
		}

		s.user = &user
		s.state = StateResolved
		if err := s.persistLocked(); err != nil {
			slog.Warn("error persisting resolved user", "error", err)
		}
	}()
}

// Wait blocks until session resolution has settled or ctx is done.
func (s *Store) Wait(ctx context.Context) error {
	select {
	case <-s.settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) SetSession(cred api.Credential, user api.User) error {
	if cred.AccessToken == "" {
		return fmt.Errorf("cannot start a session without an access token")
	}

	s.mu.Lock()
	s.cred = &cred
	s.user = &user
	s.state = StateResolved
	err := s.persistLocked()
	s.mu.Unlock()

	s.settle()

	if err != nil {
		return fmt.Errorf("error persisting session: %w", err)
	}
	return nil
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()

	s.settle()
}

// ClearIfToken clears the session only if token is the current credential. It
// reports whether this call cleared it, so concurrent rejections of the same
// credential clear exactly once and a rejection of an older credential never
// clears a newer session.
func (s *Store) ClearIfToken(token string) bool {
	s.mu.Lock()
	if token == "" || s.cred == nil || s.cred.AccessToken != token {
		s.mu.Unlock()
		return false
	}
	s.clearLocked()
	s.mu.Unlock()

	s.settle()
	return true
}

// CurrentUser fetches the identity of the current credential from the backend.
func (s *Store) CurrentUser(ctx context.Context, fetcher UserFetcher) (api.User, error) {
	if _, ok := s.Credential(); !ok {
		return api.User{}, ErrUnauthenticated
	}
	return fetcher.CurrentUser(ctx)
}

func (s *Store) clearLocked() {
	s.cred = nil
	s.user = nil
	s.state = StateCleared
	if err := s.persister.Delete(TokenKey, TokenTypeKey, UserKey); err != nil {
		slog.Warn("error removing persisted session", "error", err)
	}
}

func (s *Store) persistLocked() error {
	user, err := json.Marshal(s.user)
	if err != nil {
		return err
	}
	return s.persister.Save(map[string]string{
		TokenKey:     s.cred.AccessToken,
		TokenTypeKey: s.cred.TokenType,
		UserKey:      string(user),
	})
}

func (s *Store) settle() {
	s.settleOnce.Do(func() { close(s.settled) })
}
