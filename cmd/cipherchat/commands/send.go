package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cipherchat/internal/domain"
)

func userID(s string) domain.UserID     { return domain.UserID(s) }
func roomID(s string) domain.ChatRoomID { return domain.ChatRoomID(s) }

// send <room> <peer> <message>: encrypt and send one message, waiting for
// the relay to confirm before exiting.
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <room> <peer> <message>",
		Short: "Encrypt and send a message to a room",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := wire.OpenSession(cmd.Context(), roomID(args[0]), userID(args[1]))
			if err != nil {
				return err
			}
			defer sess.Close()

			id := sess.Submit(args[2])
			deadline := time.Now().Add(30 * time.Second)
			for time.Now().Before(deadline) {
				for _, m := range sess.Snapshot() {
					switch {
					case m.ID == id && m.Status == domain.StatusFailed:
						return fmt.Errorf("send failed")
					case m.SenderID == wire.User && m.Status == domain.StatusSent && m.Text == args[2]:
						fmt.Println("sent")
						return nil
					}
				}
				time.Sleep(100 * time.Millisecond)
			}
			return fmt.Errorf("timed out waiting for confirmation")
		},
	}
}
