package cmd

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/iksnae/copilot-session/internal"
	"github.com/iksnae/copilot-session/internal/api"
	"github.com/iksnae/copilot-session/internal/auth"
	"github.com/iksnae/copilot-session/internal/store"
	"github.com/iksnae/copilot-session/internal/stream"
	"github.com/pkg/errors"
)

// app wires the components a command needs
type app struct {
	cfg    internal.Config
	db     *sql.DB
	client *api.Client
	auth   *auth.Manager
	store  *store.Store
	cache  *internal.CacheManager
}

// loadConfig resolves the configuration and applies the persistent flags
func loadConfig() (internal.Config, error) {
	cfg, err := internal.LoadConfig(stateDir)
	var validationErr *internal.ValidationError
	if err != nil && !errors.As(err, &validationErr) {
		return cfg, err
	}
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if transport != "" {
		cfg.Transport = transport
	}
	return cfg, cfg.Validate()
}

// newApp opens the state database and restores the persisted login
func newApp(ctx context.Context) (*app, error) {
	return openApp(ctx, true)
}

// newOfflineApp opens local state only. The persisted token is left alone
// because resolving it needs the server.
func newOfflineApp(ctx context.Context) (*app, error) {
	return openApp(ctx, false)
}

func openApp(ctx context.Context, restore bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	paths, err := internal.GetStatePaths(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureStateDir(); err != nil {
		return nil, err
	}
	db, err := internal.OpenStateDatabase(paths.StateDBPath())
	if err != nil {
		return nil, err
	}

	client := api.NewClient(cfg.BaseURL, cfg.Timeout)
	manager := auth.NewManager(client, internal.NewStorageAt(db, paths.StateDBPath()))
	client.SetCredentials(manager)

	a := &app{
		cfg:    cfg,
		db:     db,
		client: client,
		auth:   manager,
		store:  store.New(client),
		cache:  internal.NewCacheManager(cfg.CacheDir),
	}

	internal.LogDebug("base URL %s, state dir %s", cfg.BaseURL, cfg.StateDir)
	if !restore {
		return a, nil
	}
	if err := manager.Restore(ctx); err != nil {
		internal.LogWarn("Failed to restore login: %v", err)
	}
	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		internal.LogWarn("Failed to close state database: %v", err)
	}
}

// requireLogin fails when no credential survived restore
func (a *app) requireLogin() error {
	if !a.auth.Authenticated() {
		return fmt.Errorf("not logged in, run `copilot-session login` first")
	}
	return nil
}

// username returns the logged-in username for cache keys
func (a *app) username() string {
	if p := a.auth.Profile(); p != nil {
		return p.Username
	}
	return ""
}

// controller builds a stream controller for the configured transport
func (a *app) controller() (*stream.Controller, error) {
	t, err := a.client.Transport(a.cfg.Transport)
	if err != nil {
		return nil, err
	}
	return stream.New(a.store, a.auth, t, a.client, stream.Options{
		Model:       a.cfg.Model,
		Temperature: a.cfg.Temperature,
	}), nil
}

// cacheOwner names the account the cache may be read for: the restored
// profile online, the stored token's subject offline
func (a *app) cacheOwner() string {
	if name := a.username(); name != "" {
		return name
	}
	token, err := internal.NewStorage(a.db).LoadToken()
	if err != nil || token == "" {
		return ""
	}
	claims, err := auth.TokenClaims(token)
	if err != nil {
		return ""
	}
	return claims.Username
}

// claimCache makes the cache belong to the logged-in account before it is
// written. false means nothing should be cached.
func (a *app) claimCache() bool {
	username := a.username()
	if username == "" {
		return false
	}
	if err := a.cache.Claim(a.cfg.BaseURL, username); err != nil {
		internal.LogWarn("Failed to prepare cache: %v", err)
		return false
	}
	return true
}

// checkCache fails unless the cache was written for this backend and the
// stored login
func (a *app) checkCache() error {
	index, err := a.cache.LoadIndex()
	if os.IsNotExist(err) {
		return fmt.Errorf("no cached sessions, run `copilot-session sessions` while online first")
	}
	if err != nil {
		return fmt.Errorf("failed to load cache: %w", err)
	}
	if !a.cache.IsCacheValid(a.cfg.BaseURL, a.cacheOwner()) {
		return fmt.Errorf("cache belongs to %q on %s, log in as that account or refresh the cache while online",
			index.Metadata.Username, index.Metadata.BaseURL)
	}
	return nil
}

// cacheConversation stores the active transcript for offline replay
func (a *app) cacheConversation(session internal.Session) {
	messages, ok := a.store.Transcript(session.ID)
	if !ok || !a.claimCache() {
		return
	}
	if err := a.cache.SaveConversation(&internal.Conversation{Session: session, Messages: messages}); err != nil {
		internal.LogWarn("Failed to cache session %d: %v", session.ID, err)
	}
}

// readSecret reads a password from stdin when it was not given as a flag
func readSecret(value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	if internal.IsTerminal(os.Stdin) {
		fmt.Fprint(os.Stderr, prompt)
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read %s: %w", strings.TrimSuffix(strings.ToLower(prompt), ": "), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
