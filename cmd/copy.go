package cmd

import (
	"github.com/djcass44/apt-tree/pkg/control"
	"github.com/djcass44/apt-tree/pkg/index"
	"github.com/djcass44/apt-tree/pkg/tree"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "copy stanzas matching selectors from one tree to another",
	RunE:  runCopy,
}

func init() {
	copyCmd.Flags().String(flagInputDir, "", "tree region to copy from")
	copyCmd.Flags().StringP(flagOutput, "o", "", "tree region to copy into")
	copyCmd.Flags().String(flagKind, string(index.Packages), "index kind (Packages or Sources)")

	_ = copyCmd.MarkFlagRequired(flagInputDir)
	_ = copyCmd.MarkFlagRequired(flagOutput)
	_ = copyCmd.MarkFlagDirname(flagInputDir)
	_ = copyCmd.MarkFlagDirname(flagOutput)
}

func runCopy(cmd *cobra.Command, _ []string) error {
	log := logr.FromContextOrDiscard(cmd.Context())

	inputDir, _ := cmd.Flags().GetString(flagInputDir)
	output, _ := cmd.Flags().GetString(flagOutput)
	kind, err := parseKind(cmd)
	if err != nil {
		return err
	}
	selectors, err := index.ParseSelectors(cmd.InOrStdin())
	if err != nil {
		return err
	}

	res, err := tree.NewExporter(inputDir).Export(cmd.Context(), kind)
	if err != nil {
		return err
	}

	var matched []control.Stanza
	for _, s := range res.Index.Stanzas {
		if index.MatchAny(selectors, s) {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		log.Info("no stanzas matched")
		return nil
	}

	subset := &index.Index{Kind: kind, Stanzas: matched}
	report, err := tree.NewImporter(output).Import(cmd.Context(), subset)
	if err != nil {
		return err
	}
	log.Info("copied stanzas", "added", len(report.Added), "updated", len(report.Updated), "unchanged", len(report.Unchanged))
	return nil
}
