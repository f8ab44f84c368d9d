package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherchat/internal/crypto"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint [peer]",
		Short: "Print a key fingerprint (yours, or a peer's published key)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return peerFingerprint(cmd, args[0])
			}
			priv, ok, err := wire.Keys.PrivateKey(wire.User)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no keys for %s. run init first", wire.User)
			}
			pub, err := crypto.PublicPEMFromPrivate(priv)
			if err != nil {
				return err
			}
			fmt.Printf("Fingerprint: %s\n", crypto.Fingerprint(pub))
			return nil
		},
	}
}

func peerFingerprint(cmd *cobra.Command, peer string) error {
	pem, ok, err := wire.Remote.GetPublicKey(cmd.Context(), userID(peer))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s has not published a key", peer)
	}
	fmt.Printf("Fingerprint for %s: %s\n", peer, crypto.Fingerprint(pem))
	return nil
}
