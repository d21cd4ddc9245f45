package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/roomline/roomline/internal/logging"
	"github.com/roomline/roomline/internal/models"
	"github.com/roomline/roomline/internal/timeline"
)

var (
	snapshotRoom   string
	snapshotThread string
	snapshotEvent  string
	snapshotCount  int
)

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().StringVar(&snapshotRoom, "room", "", "room ID (required)")
	snapshotCmd.Flags().StringVar(&snapshotThread, "thread", "", "follow a thread instead of the live timeline")
	snapshotCmd.Flags().StringVar(&snapshotEvent, "event", "", "anchor the timeline on a specific event")
	snapshotCmd.Flags().IntVarP(&snapshotCount, "count", "n", 30, "how many events to materialize")
	_ = snapshotCmd.MarkFlagRequired("room")
	snapshotCmd.MarkFlagsMutuallyExclusive("thread", "event")
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Build and print a timeline snapshot",
	Long: "Build a timeline snapshot from the local database, newest first.\n" +
		"Only locally cached events are shown; nothing is fetched.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.DB().Close()

		var mode timeline.Mode = timeline.LiveMode{}
		switch {
		case snapshotThread != "":
			mode = timeline.ThreadMode{RootEventID: snapshotThread}
		case snapshotEvent != "":
			mode = timeline.PermalinkMode{EventID: snapshotEvent}
		}

		strategyCfg := timeline.DefaultStrategyConfig()
		strategyCfg.InitialSize = snapshotCount
		if cfg != nil {
			strategyCfg.BuildReadReceipts = cfg.Timeline.BuildReadReceipts
			strategyCfg.SenderWithLiveRoomState = cfg.Timeline.SenderWithLiveRoomState
			strategyCfg.EnableChainRepair = cfg.Timeline.EnableChainRepair
			strategyCfg.RepairMaxHops = cfg.Timeline.RepairMaxHops
		}

		strategy := timeline.NewStrategy(timeline.StrategyParams{
			RoomID: snapshotRoom,
			Mode:   mode,
			Store:  st,
			Config: strategyCfg,
		})
		if err := strategy.Start(); err != nil {
			return fmt.Errorf("failed to start timeline: %w", err)
		}
		defer strategy.Stop()

		// Offline inspection: pull in locally cached history past the
		// initial window, never the server.
		if err := strategy.LoadMore(context.Background(), snapshotCount, models.DirectionBackwards, false); err != nil {
			logging.Warn().Err(err).Msg("pagination stopped early")
		}

		events := strategy.BuildSnapshot()
		if len(events) == 0 {
			fmt.Println("no events")
			return nil
		}

		headers := []string{"#", "EVENT", "TYPE", "SENDER", "TS", "BODY"}
		rows := make([][]string, 0, len(events))
		for i, te := range events {
			body := timeline.DisplayableContent(te)
			if len(body) > 60 {
				body = body[:57] + "..."
			}
			ts := time.UnixMilli(te.Event.OriginServerTS).UTC().Format("2006-01-02 15:04:05")
			rows = append(rows, []string{
				strconv.Itoa(i),
				shortID(te.Event.ID),
				string(te.Event.EffectiveType()),
				te.Event.SenderID,
				ts,
				body,
			})
		}
		return writeTable(os.Stdout, headers, rows)
	},
}
