package app

import (
	"net/http"

	"cipherchat/internal/domain"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home       string        // config directory, e.g. $HOME/.cipherchat
	User       domain.UserID // local account id
	Passphrase string        // protects the on-disk key store
	RelayURL   string        // relay base URL; empty selects the in-process store
	LogLevel   string        // debug, info, warn, error
	HTTP       *http.Client  // optional; defaults to http.DefaultClient
}
