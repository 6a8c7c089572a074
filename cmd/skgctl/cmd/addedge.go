package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Qksidmx/skgraph/request"
	"github.com/Qksidmx/skgraph/skg"
)

var (
	addEdgeLabel  string
	addEdgeSrc    uint32
	addEdgeDst    uint32
	addEdgeTag    uint8
	addEdgeWeight float32
)

var addEdgeCmd = &cobra.Command{
	Use:   "add-edge",
	Short: "Append one edge",
	RunE: func(_ *cobra.Command, _ []string) error {
		path, err := dbPath()
		if err != nil {
			return err
		}
		log := newLogger()
		defer func() { _ = log.Sync() }()

		h, err := skg.Open(path, engineOptions(log)...)
		if err != nil {
			return err
		}
		defer h.Close()

		req := request.EdgeRequest{Label: addEdgeLabel, Src: addEdgeSrc, Dst: addEdgeDst, Tag: addEdgeTag, Weight: addEdgeWeight}
		if err := h.AddEdge(req); err != nil {
			return err
		}
		fmt.Printf("added %s: %d -> %d\n", addEdgeLabel, addEdgeSrc, addEdgeDst)

		return nil
	},
}

func init() {
	addEdgeCmd.Flags().StringVar(&addEdgeLabel, "label", "", "edge label (required)")
	addEdgeCmd.Flags().Uint32Var(&addEdgeSrc, "src", 0, "source vertex id (required)")
	addEdgeCmd.Flags().Uint32Var(&addEdgeDst, "dst", 0, "destination vertex id (required)")
	addEdgeCmd.Flags().Uint8Var(&addEdgeTag, "tag", 0, "edge label's tag")
	addEdgeCmd.Flags().Float32Var(&addEdgeWeight, "weight", 0, "edge weight")
	_ = addEdgeCmd.MarkFlagRequired("label")
	_ = addEdgeCmd.MarkFlagRequired("src")
	_ = addEdgeCmd.MarkFlagRequired("dst")
}
