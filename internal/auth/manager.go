// Package auth owns the bearer credential: login, restore from the local
// state database, profile resolution and logout.
package auth

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/iksnae/copilot-session/internal"
	"github.com/iksnae/copilot-session/internal/api"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// UserAPI is the part of the request layer the manager needs
type UserAPI interface {
	Login(ctx context.Context, username, password string) (*internal.LoginResult, error)
	Register(ctx context.Context, req api.RegisterRequest) (*internal.UserProfile, error)
	UserInfo(ctx context.Context) (*internal.UserProfile, error)
	UpdateUserInfo(ctx context.Context, nickname, email string) (*internal.UserProfile, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
}

// TokenStore persists the token between runs
type TokenStore interface {
	LoadToken() (string, error)
	SaveToken(token string) error
	RemoveToken() error
}

// Manager holds the credential. Observers are notified synchronously, in
// mutation order, and must not call mutating methods.
type Manager struct {
	api    UserAPI
	tokens TokenStore
	log    zerolog.Logger

	mu      sync.Mutex
	token   string
	profile *internal.UserProfile
	gen     uint64

	fetches  singleflight.Group
	notifier internal.Notifier[internal.Credential]
}

// NewManager creates a logged-out manager
func NewManager(userAPI UserAPI, tokens TokenStore) *Manager {
	return &Manager{
		api:    userAPI,
		tokens: tokens,
		log:    internal.ComponentLogger("auth"),
	}
}

// Subscribe registers fn for credential changes
func (m *Manager) Subscribe(fn func(internal.Credential)) (unsubscribe func()) {
	return m.notifier.Subscribe(fn)
}

// update applies fn under the lock and notifies observers when it reports a change
func (m *Manager) update(fn func() bool) {
	m.mu.Lock()
	if !fn() {
		m.mu.Unlock()
		return
	}
	m.notifier.Publish(m.credentialLocked(), m.mu.Unlock)
}

func (m *Manager) credentialLocked() internal.Credential {
	cred := internal.Credential{Token: m.token}
	if m.profile != nil {
		p := *m.profile
		cred.Profile = &p
	}
	return cred
}

// Credential returns a snapshot of the token and profile
func (m *Manager) Credential() internal.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credentialLocked()
}

// Token returns the bearer token, empty when logged out
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Profile returns the resolved profile, nil while unknown
func (m *Manager) Profile() *internal.UserProfile {
	return m.Credential().Profile
}

// Authenticated reports whether a token is held
func (m *Manager) Authenticated() bool {
	return m.Token() != ""
}

// Login authenticates and stores the credential. A failure to persist the
// token is logged; the in-memory login still holds.
func (m *Manager) Login(ctx context.Context, username, password string) (*internal.LoginResult, error) {
	result, err := m.api.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	profile := result.User
	m.update(func() bool {
		m.gen++
		m.token = result.Token
		m.profile = &profile
		return true
	})

	if err := m.tokens.SaveToken(result.Token); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist token, login will not survive a restart")
	}
	m.log.Info().Str("username", profile.Username).Msg("logged in")
	return result, nil
}

// Register creates an account without logging in
func (m *Manager) Register(ctx context.Context, req api.RegisterRequest) (*internal.UserProfile, error) {
	profile, err := m.api.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	m.log.Info().Str("username", profile.Username).Msg("registered")
	return profile, nil
}

// Restore loads the persisted token and resolves its profile. A token the
// server no longer accepts ends logged out.
func (m *Manager) Restore(ctx context.Context) error {
	token, err := m.tokens.LoadToken()
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}

	if claims, err := TokenClaims(token); err == nil && claims.Expired(time.Now()) {
		m.log.Warn().Time("expired_at", claims.ExpiresAt.Time).Msg("persisted token looks expired")
	}

	m.update(func() bool {
		m.gen++
		m.token = token
		m.profile = nil
		return true
	})
	m.FetchProfile(ctx)
	return nil
}

// FetchProfile resolves the profile for the current token. Concurrent calls
// share one request. Any failure logs out; nothing is returned.
func (m *Manager) FetchProfile(ctx context.Context) {
	m.mu.Lock()
	token, gen := m.token, m.gen
	m.mu.Unlock()
	if token == "" {
		return
	}

	_, _, _ = m.fetches.Do(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		profile, err := m.api.UserInfo(ctx)
		if err != nil {
			m.log.Warn().Err(err).Msg("profile fetch failed, logging out")
			m.logout(func() bool { return m.gen == gen })
			return nil, nil
		}
		m.update(func() bool {
			if m.gen != gen {
				return false
			}
			m.profile = profile
			return true
		})
		return nil, nil
	})
}

// Logout drops the credential and the persisted token. Calling it again is harmless.
func (m *Manager) Logout() {
	m.logout(nil)
}

// Invalidate is called by the request layer when the server rejects
// rejected. A token that has already been replaced leaves the credential
// alone.
func (m *Manager) Invalidate(rejected string) {
	m.logout(func() bool {
		if m.token != rejected {
			m.log.Debug().Msg("ignoring rejection of a replaced token")
			return false
		}
		m.log.Info().Msg("credential invalidated by server")
		return true
	})
}

// logout clears state when match (evaluated under the lock) allows it
func (m *Manager) logout(match func() bool) {
	cleared := match == nil
	m.update(func() bool {
		if match != nil && !match() {
			return false
		}
		cleared = true
		changed := m.token != "" || m.profile != nil
		m.gen++
		m.token = ""
		m.profile = nil
		return changed
	})
	if !cleared {
		return
	}
	if err := m.tokens.RemoveToken(); err != nil {
		m.log.Warn().Err(err).Msg("failed to remove persisted token")
	}
}

// UpdateProfile changes nickname and email and refreshes the cached profile
func (m *Manager) UpdateProfile(ctx context.Context, nickname, email string) (*internal.UserProfile, error) {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	profile, err := m.api.UpdateUserInfo(ctx, nickname, email)
	if err != nil {
		return nil, err
	}
	m.update(func() bool {
		if m.gen != gen || m.token == "" {
			return false
		}
		p := *profile
		m.profile = &p
		return true
	})
	return profile, nil
}

// ChangePassword replaces the account password. The current token stays valid.
func (m *Manager) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return m.api.ChangePassword(ctx, oldPassword, newPassword)
}
