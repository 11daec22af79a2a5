package userstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ohgun/credgate"
	"github.com/ohgun/credgate/login"
)

type memoryUser struct {
	login.User
	avatarURL   string
	lastLoginAt time.Time
}

// Memory is an in-process user store. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[string]*memoryUser
	byIdent map[string]string
	history []login.Record
}

func NewMemory() *Memory {
	return &Memory{
		byID:    map[string]*memoryUser{},
		byIdent: map[string]string{},
	}
}

func identKey(provider, subject string) string {
	return provider + "\x00" + subject
}

func (m *Memory) FindOrCreateUser(_ context.Context, profile login.Profile) (login.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := identKey(profile.Provider, profile.ProviderSubjectID)
	if id, ok := m.byIdent[key]; ok {
		u := m.byID[id]
		u.Name = profile.DisplayName
		u.Nickname = profile.Nickname
		u.avatarURL = profile.AvatarURL
		u.lastLoginAt = time.Now()
		return u.User, nil
	}

	m.nextID++
	id := strconv.FormatInt(m.nextID, 10)
	u := &memoryUser{
		User: login.User{
			ID:       id,
			Email:    profile.Email,
			Name:     profile.DisplayName,
			Nickname: profile.Nickname,
			Role:     DefaultRole,
			Provider: profile.Provider,
			Enabled:  true,
		},
		avatarURL:   profile.AvatarURL,
		lastLoginAt: time.Now(),
	}
	m.byID[id] = u
	m.byIdent[key] = id
	return u.User, nil
}

func (m *Memory) RecordLogin(_ context.Context, record login.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, record)
	return nil
}

func (m *Memory) LookupOwner(_ context.Context, subjectID string) (credgate.Attributes, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[subjectID]
	if !ok || !u.Enabled {
		return credgate.Attributes{}, credgate.ErrOwnerNotFound
	}
	return u.Attributes(), nil
}

// SetEnabled enables or disables a user. It reports whether the user exists.
func (m *Memory) SetEnabled(userID string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if ok {
		u.Enabled = enabled
	}
	return ok
}

// SetRole changes a user's role. Refreshed credentials pick it up.
func (m *Memory) SetRole(userID, role string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if ok {
		u.Role = role
	}
	return ok
}

// History returns a copy of the recorded logins.
func (m *Memory) History() []login.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]login.Record(nil), m.history...)
}
