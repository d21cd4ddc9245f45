package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/roomline/roomline/internal/timeline"
)

var (
	repairRoom    string
	repairMaxHops int
)

func init() {
	rootCmd.AddCommand(repairCmd)

	repairCmd.Flags().StringVar(&repairRoom, "room", "", "room ID (required)")
	repairCmd.Flags().IntVar(&repairMaxHops, "max-hops", 0, "bound each chain traversal (0 = config default)")
	_ = repairCmd.MarkFlagRequired("room")
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Run chunk-chain integrity repair for a room",
	Long: "Walk every chunk chain in the room, removing no-op empty chunks\n" +
		"and breaking self-referential loops. Anomalies that cannot be\n" +
		"repaired safely are logged and left intact.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.DB().Close()

		maxHops := repairMaxHops
		if maxHops == 0 && cfg != nil {
			maxHops = cfg.Timeline.RepairMaxHops
		}
		repairer := timeline.NewChainRepairer(st, maxHops)

		ctx := context.Background()
		chunks, err := st.Chunks().RoomChunks(ctx, repairRoom)
		if err != nil {
			return fmt.Errorf("failed to list chunks: %w", err)
		}
		if len(chunks) == 0 {
			fmt.Println("no chunks to repair")
			return nil
		}

		repaired := 0
		for _, chunk := range chunks {
			changed, err := repairer.Repair(ctx, chunk.ID)
			if err != nil {
				return fmt.Errorf("repair failed at chunk %s: %w", chunk.ID, err)
			}
			if changed {
				repaired++
			}
		}

		if repaired == 0 {
			fmt.Println("chain intact; nothing to repair")
		} else {
			fmt.Printf("repaired %d chain segment(s)\n", repaired)
		}
		return nil
	},
}
