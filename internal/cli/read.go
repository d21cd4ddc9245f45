package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/roomline/roomline/internal/config"
	"github.com/roomline/roomline/internal/timeline"
)

var (
	readRoom        string
	readUser        string
	readEvent       string
	readCheckThread bool
	readEventTS     int64
)

func init() {
	rootCmd.AddCommand(readCmd)

	readCmd.Flags().StringVar(&readRoom, "room", "", "room ID (defaults to CLI context)")
	readCmd.Flags().StringVar(&readUser, "user", "", "user ID (defaults to CLI context)")
	readCmd.Flags().StringVar(&readEvent, "event", "", "event ID (required)")
	readCmd.Flags().BoolVar(&readCheckThread, "check-thread", false, "also consult the thread-scoped receipt")
	readCmd.Flags().Int64Var(&readEventTS, "event-ts", 0, "origin timestamp (ms) for events not cached locally")
	_ = readCmd.MarkFlagRequired("event")
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Query read state for an event",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, userID := readRoom, readUser
		if roomID == "" || userID == "" {
			cliCtx, err := config.DefaultContextStore().Load()
			if err != nil {
				return err
			}
			if roomID == "" {
				roomID = cliCtx.RoomID
			}
			if userID == "" {
				userID = cliCtx.UserID
			}
		}
		if roomID == "" {
			return fmt.Errorf("no room; use --room or `roomline context set-room`")
		}
		if userID == "" {
			return fmt.Errorf("no user; use --user or `roomline context set-user`")
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.DB().Close()

		queries := timeline.NewReadQueries(st)
		ctx := context.Background()

		read := queries.IsEventRead(ctx, userID, roomID, readEvent, timeline.ReadOptions{
			CheckThread: readCheckThread,
			EventTS:     readEventTS,
		})
		markerRecent := queries.IsReadMarkerMoreRecent(ctx, roomID, readEvent)
		markedUnread := queries.IsMarkedUnread(ctx, roomID)

		fmt.Printf("event read:          %s\n", formatYesNo(read))
		fmt.Printf("marker more recent:  %s\n", formatYesNo(markerRecent))
		fmt.Printf("room marked unread:  %s\n", formatYesNo(markedUnread))
		return nil
	},
}
