package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cipherchat/internal/chat"
	"cipherchat/internal/domain"
)

// watch <room> <peer>: follow a room and print the decrypted view after
// every change until interrupted.
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <room> <peer>",
		Short: "Follow a room, decrypting messages as they arrive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := wire.OpenSession(cmd.Context(), roomID(args[0]), userID(args[1]),
				chat.WithOnUpdate(printView))
			if err != nil {
				return err
			}
			defer sess.Close()

			fmt.Printf("watching %s (ctrl-c to stop)\n", args[0])
			printView(sess.Snapshot())

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			select {
			case <-sig:
			case <-cmd.Context().Done():
			}
			return nil
		},
	}
}

func printView(view []domain.DecryptedMessage) {
	fmt.Print("\033[2J\033[H") // clear screen
	for _, m := range view {
		stamp := "--:--"
		if m.CreatedAt.Kind() != domain.TimeUnknown {
			stamp = time.UnixMilli(m.CreatedAt.Millis()).Format("15:04")
		}
		marker := ""
		switch m.Status {
		case domain.StatusPending:
			marker = " (sending)"
		case domain.StatusFailed:
			marker = " (failed)"
		}
		fmt.Printf("[%s] %s: %s%s\n", stamp, m.SenderID, m.Text, marker)
	}
}
