package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/roomline/roomline/internal/models"
)

var (
	chunksRoom   string
	chunksThread string
)

func init() {
	rootCmd.AddCommand(chunksCmd)

	chunksCmd.Flags().StringVar(&chunksRoom, "room", "", "room ID (required)")
	chunksCmd.Flags().StringVar(&chunksThread, "thread", "", "restrict to a thread root event ID")
	_ = chunksCmd.MarkFlagRequired("room")
}

var chunksCmd = &cobra.Command{
	Use:     "chunks",
	Aliases: []string{"ls"},
	Short:   "List a room's chunk chain",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.DB().Close()

		ctx := context.Background()

		var chunks []*models.Chunk
		if chunksThread != "" {
			chunks, err = st.Chunks().ThreadChunks(ctx, chunksRoom, chunksThread)
		} else {
			chunks, err = st.Chunks().RoomChunks(ctx, chunksRoom)
		}
		if err != nil {
			return fmt.Errorf("failed to list chunks: %w", err)
		}
		if len(chunks) == 0 {
			fmt.Println("no chunks")
			return nil
		}

		headers := []string{"SEQ", "ID", "PREV", "NEXT", "EVENTS", "LIVE", "THREAD"}
		rows := make([][]string, 0, len(chunks))
		for _, chunk := range chunks {
			count, err := st.Events().Count(ctx, chunk.ID)
			if err != nil {
				return fmt.Errorf("failed to count events in %s: %w", chunk.ID, err)
			}
			live := chunk.IsLastForward
			if chunk.RootThreadEventID != "" {
				live = chunk.IsLastForwardThread
			}
			rows = append(rows, []string{
				strconv.FormatInt(chunk.Seq, 10),
				shortID(chunk.ID),
				shortID(chunk.PrevChunkID),
				shortID(chunk.NextChunkID),
				strconv.Itoa(count),
				formatYesNo(live),
				shortID(chunk.RootThreadEventID),
			})
		}
		return writeTable(os.Stdout, headers, rows)
	},
}

func shortID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
