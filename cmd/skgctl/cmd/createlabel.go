package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Qksidmx/skgraph/skg"
)

var (
	createLabelTag    uint8
	createLabelSrcTag uint8
	createLabelDstTag uint8
)

var createLabelCmd = &cobra.Command{
	Use:   "create-label LABEL",
	Short: "Declare a new edge label",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
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

		if err := h.CreateEdgeLabel(args[0], createLabelTag, createLabelSrcTag, createLabelDstTag); err != nil {
			return err
		}
		fmt.Println("created label", args[0])

		return nil
	},
}

func init() {
	createLabelCmd.Flags().Uint8Var(&createLabelTag, "tag", 0, "the label's numeric tag")
	createLabelCmd.Flags().Uint8Var(&createLabelSrcTag, "src-tag", 0, "the source vertex label's tag")
	createLabelCmd.Flags().Uint8Var(&createLabelDstTag, "dst-tag", 0, "the destination vertex label's tag")
}
