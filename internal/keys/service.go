package keys

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/logger"
)

const privateKeyName = "privateKey:"

// Service implements domain.KeyService.
type Service struct {
	store  domain.SecureKeyStore
	remote domain.RemoteStore
	log    *logger.Logger

	group singleflight.Group

	// inline forces generation on the calling goroutine. Degraded mode for
	// environments that cannot spare a worker; correctness is unchanged.
	inline bool

	// generate is replaceable in tests; defaults to crypto.GenerateKeyPair.
	generate func() (domain.KeyPair, error)
}

// Option configures a Service.
type Option func(*Service)

// WithInlineGeneration disables the background worker and generates key
// pairs synchronously on the calling goroutine.
func WithInlineGeneration() Option {
	return func(s *Service) { s.inline = true }
}

// WithGenerator substitutes the key-pair generator. Test hook.
func WithGenerator(gen func() (domain.KeyPair, error)) Option {
	return func(s *Service) { s.generate = gen }
}

func New(store domain.SecureKeyStore, remote domain.RemoteStore, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		store:    store,
		remote:   remote,
		log:      log,
		generate: crypto.GenerateKeyPair,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureKeys checks that user has a local private key and a published
// public key; when either is missing a fresh pair is generated, persisted
// and published. Safe to call concurrently; calls for the same user share
// one in-flight generation.
func (s *Service) EnsureKeys(ctx context.Context, user domain.UserID) error {
	_, ok, err := s.store.Get(privateKeyName + user.String())
	if err != nil {
		return fmt.Errorf("%w: reading private key: %v", domain.ErrKeyGen, err)
	}
	if ok {
		_, published, err := s.remote.GetPublicKey(ctx, user)
		if err != nil {
			return fmt.Errorf("%w: checking published key: %v", domain.ErrKeyGen, err)
		}
		if published {
			return nil
		}
	}

	_, err, _ = s.group.Do(user.String(), func() (any, error) {
		// Re-check inside the flight: a concurrent caller may have finished
		// the whole dance while we were queued.
		if _, ok, err := s.store.Get(privateKeyName + user.String()); err == nil && ok {
			if _, published, err := s.remote.GetPublicKey(ctx, user); err == nil && published {
				return nil, nil
			}
		}
		return nil, s.generateAndInstall(ctx, user)
	})
	return err
}

// Regenerate discards any existing pair and installs a new one. Messages
// encrypted to the previous public key can no longer be decrypted; there is
// no re-encryption mechanism.
func (s *Service) Regenerate(ctx context.Context, user domain.UserID) error {
	_, err, _ := s.group.Do(user.String(), func() (any, error) {
		return nil, s.generateAndInstall(ctx, user)
	})
	return err
}

// PrivateKey returns the locally stored private key PEM.
func (s *Service) PrivateKey(user domain.UserID) (string, bool, error) {
	return s.store.Get(privateKeyName + user.String())
}

func (s *Service) generateAndInstall(ctx context.Context, user domain.UserID) error {
	s.log.Info("generating RSA key pair", "user", user)

	pair, err := s.runGeneration(ctx)
	if err != nil {
		return err
	}
	if err := s.store.Set(privateKeyName+user.String(), pair.PrivatePEM); err != nil {
		return fmt.Errorf("%w: persisting private key: %v", domain.ErrKeyGen, err)
	}
	if err := s.remote.PublishPublicKey(ctx, user, pair.PublicPEM); err != nil {
		return fmt.Errorf("%w: publishing public key: %v", domain.ErrKeyGen, err)
	}
	s.log.Info("key pair installed", "user", user, "fingerprint", crypto.Fingerprint(pair.PublicPEM))
	return nil
}

// runGeneration performs the CPU-heavy RSA generation on a worker goroutine
// so the caller's context can abandon the wait, falling back to inline
// execution when configured.
func (s *Service) runGeneration(ctx context.Context) (domain.KeyPair, error) {
	if s.inline {
		return s.generate()
	}

	type result struct {
		pair domain.KeyPair
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		pair, err := s.generate()
		ch <- result{pair, err}
	}()

	select {
	case r := <-ch:
		return r.pair, r.err
	case <-ctx.Done():
		return domain.KeyPair{}, fmt.Errorf("%w: %v", domain.ErrKeyGen, ctx.Err())
	}
}

var _ domain.KeyService = (*Service)(nil)
