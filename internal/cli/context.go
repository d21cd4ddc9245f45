package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/roomline/roomline/internal/config"
)

func init() {
	rootCmd.AddCommand(contextCmd)
	contextCmd.AddCommand(contextShowCmd)
	contextCmd.AddCommand(contextSetRoomCmd)
	contextCmd.AddCommand(contextSetUserCmd)
	contextCmd.AddCommand(contextClearCmd)
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage the CLI context (selected room and user)",
}

var contextShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current context",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cliCtx, err := config.DefaultContextStore().Load()
		if err != nil {
			return err
		}
		fmt.Println(cliCtx.String())
		return nil
	},
}

var contextSetRoomCmd = &cobra.Command{
	Use:   "set-room <room-id> [name]",
	Short: "Select a room",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.DefaultContextStore()
		cliCtx, err := store.Load()
		if err != nil {
			return err
		}
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		cliCtx.SetRoom(args[0], name)
		if err := store.Save(cliCtx); err != nil {
			return err
		}
		fmt.Println(cliCtx.String())
		return nil
	},
}

var contextSetUserCmd = &cobra.Command{
	Use:   "set-user <user-id>",
	Short: "Select the acting user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.DefaultContextStore()
		cliCtx, err := store.Load()
		if err != nil {
			return err
		}
		cliCtx.SetUser(args[0])
		if err := store.Save(cliCtx); err != nil {
			return err
		}
		fmt.Println(cliCtx.String())
		return nil
	},
}

var contextClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the context",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.DefaultContextStore().Clear()
	},
}
