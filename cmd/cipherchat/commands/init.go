package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherchat/internal/crypto"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate and publish encryption keys for this account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.Keys.EnsureKeys(cmd.Context(), wire.User); err != nil {
				return err
			}
			priv, ok, err := wire.Keys.PrivateKey(wire.User)
			if err != nil || !ok {
				return fmt.Errorf("keys installed but private key unreadable: %v", err)
			}
			pub, err := crypto.PublicPEMFromPrivate(priv)
			if err != nil {
				return err
			}
			fmt.Printf("Keys ready for %s.\nFingerprint: %s\n", wire.User, crypto.Fingerprint(pub))
			return nil
		},
	}
}

func regenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate",
		Short: "Replace the local key pair",
		Long: "Replace the local key pair and publish the new public key.\n" +
			"Messages encrypted to the old key can no longer be decrypted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.Keys.Regenerate(cmd.Context(), wire.User); err != nil {
				return err
			}
			fmt.Println("Key pair replaced.")
			return nil
		},
	}
}
