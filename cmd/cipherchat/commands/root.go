package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cipherchat/internal/app"
	"cipherchat/internal/domain"
)

var (
	home       string
	user       string
	passphrase string
	relayURL   string
	logLevel   string

	wire *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:   "cipherchat",
		Short: "End-to-end encrypted chat client",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return fmt.Errorf("user required (-u)")
			}
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".cipherchat")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			var err error
			wire, err = app.NewWire(app.Config{
				Home:       home,
				User:       domain.UserID(user),
				Passphrase: passphrase,
				RelayURL:   relayURL,
				LogLevel:   logLevel,
			})
			return err
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.cipherchat)")
	root.PersistentFlags().StringVarP(&user, "user", "u", "", "your account id")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase to protect keys")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(initCmd(), fingerprintCmd(), regenerateCmd(), sendCmd(), watchCmd(), clearCacheCmd())
	return root.Execute()
}
