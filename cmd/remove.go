package cmd

import (
	"github.com/djcass44/apt-tree/pkg/control"
	"github.com/djcass44/apt-tree/pkg/index"
	"github.com/djcass44/apt-tree/pkg/tree"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "remove stanzas matching selectors read from stdin",
	Long: `Reads one selector per line from stdin (name=version, or
name (>= version) constraints) and removes matching manifests from the
tree region. Pool entries are never removed.`,
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().StringP(flagOutput, "o", "", "tree region to remove from")
	removeCmd.Flags().String(flagKind, string(index.Packages), "index kind (Packages or Sources)")

	_ = removeCmd.MarkFlagRequired(flagOutput)
	_ = removeCmd.MarkFlagDirname(flagOutput)
}

func runRemove(cmd *cobra.Command, _ []string) error {
	log := logr.FromContextOrDiscard(cmd.Context())

	output, _ := cmd.Flags().GetString(flagOutput)
	kind, err := parseKind(cmd)
	if err != nil {
		return err
	}
	selectors, err := index.ParseSelectors(cmd.InOrStdin())
	if err != nil {
		return err
	}

	res, err := tree.NewExporter(output).Export(cmd.Context(), kind)
	if err != nil {
		return err
	}

	kept := make([]control.Stanza, 0, len(res.Index.Stanzas))
	for _, s := range res.Index.Stanzas {
		if index.MatchAny(selectors, s) {
			log.V(1).Info("removing stanza", "key", s.Key())
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == len(res.Index.Stanzas) {
		log.Info("no stanzas matched")
		return nil
	}

	// re-importing the reduced set with pruning drops the orphans as one
	// atomic change
	reduced := &index.Index{Kind: kind, Stanzas: kept}
	report, err := tree.NewImporter(output, tree.WithPrune()).Import(cmd.Context(), reduced)
	if err != nil {
		return err
	}
	log.Info("removed stanzas", "count", len(report.Removed))
	return nil
}
