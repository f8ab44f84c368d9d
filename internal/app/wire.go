package app

import (
	"context"
	"net/http"
	"path/filepath"

	"cipherchat/internal/cache"
	"cipherchat/internal/chat"
	"cipherchat/internal/domain"
	"cipherchat/internal/keys"
	"cipherchat/internal/keystore"
	"cipherchat/internal/logger"
	"cipherchat/internal/remote"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	User     domain.UserID
	Keystore domain.SecureKeyStore
	Keys     domain.KeyService
	Cache    domain.MessageCache
	Remote   domain.RemoteStore
	Log      *logger.Logger
	HTTP     *http.Client
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	log := logger.New(cfg.LogLevel)

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	// File-based stores under the config home.
	ks, err := keystore.NewFileStore(filepath.Join(cfg.Home, "keys"), cfg.Passphrase)
	if err != nil {
		return nil, err
	}
	storage, err := cache.NewFileStorage(filepath.Join(cfg.Home, "cache"))
	if err != nil {
		return nil, err
	}

	// Without a relay the client runs against an in-process store, which
	// is enough for a single-process demo.
	var rs domain.RemoteStore
	if cfg.RelayURL != "" {
		rs = remote.NewClient(cfg.RelayURL, httpClient, log)
	} else {
		rs = remote.NewMemoryStore()
	}

	return &Wire{
		User:     cfg.User,
		Keystore: ks,
		Keys:     keys.New(ks, rs, log),
		Cache:    cache.New(storage, ks, cfg.User, log),
		Remote:   rs,
		Log:      log,
		HTTP:     httpClient,
	}, nil
}

// OpenSession builds and opens a chat session between the local user and
// peer. The caller owns the returned session and must Close it.
func (w *Wire) OpenSession(ctx context.Context, room domain.ChatRoomID, peer domain.UserID, opts ...chat.Option) (*chat.Session, error) {
	if err := w.Keys.EnsureKeys(ctx, w.User); err != nil {
		return nil, err
	}
	sess := chat.NewSession(room, w.User, peer, w.Keys, w.Cache, w.Remote, w.Log, opts...)
	if err := sess.Open(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}
