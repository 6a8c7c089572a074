package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Qksidmx/skgraph/request"
	"github.com/Qksidmx/skgraph/skg"
)

var (
	getEdgeLabel string
	getEdgeSrc   uint32
	getEdgeDst   uint32
	getEdgeTag   uint8
)

var getEdgeCmd = &cobra.Command{
	Use:   "get-edge",
	Short: "Print one edge's stored attributes",
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

		req := request.EdgeRequest{Label: getEdgeLabel, Src: getEdgeSrc, Dst: getEdgeDst, Tag: getEdgeTag}
		edge, err := h.GetEdgeAttributes(req)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d -> %d weight=%v tombstoned=%v\n", getEdgeLabel, edge.Src, edge.Dst, edge.Weight, edge.Tombstoned)

		return nil
	},
}

func init() {
	getEdgeCmd.Flags().StringVar(&getEdgeLabel, "label", "", "edge label (required)")
	getEdgeCmd.Flags().Uint32Var(&getEdgeSrc, "src", 0, "source vertex id (required)")
	getEdgeCmd.Flags().Uint32Var(&getEdgeDst, "dst", 0, "destination vertex id (required)")
	getEdgeCmd.Flags().Uint8Var(&getEdgeTag, "tag", 0, "edge label's tag")
	_ = getEdgeCmd.MarkFlagRequired("label")
	_ = getEdgeCmd.MarkFlagRequired("src")
	_ = getEdgeCmd.MarkFlagRequired("dst")
}
