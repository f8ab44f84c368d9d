package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func clearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache <room>",
		Short: "Drop the decrypted message cache for a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.Cache.ClearChat(roomID(args[0])); err != nil {
				return err
			}
			fmt.Println("cache cleared")
			return nil
		},
	}
}
