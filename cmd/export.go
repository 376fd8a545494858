package cmd

import (
	"fmt"
	"io"

	"github.com/djcass44/apt-tree/internal/write"
	"github.com/djcass44/apt-tree/pkg/index"
	"github.com/djcass44/apt-tree/pkg/tree"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "reconstruct a compressed index from a tree",
	RunE:  runExport,
}

const (
	flagKind    = "kind"
	flagOutFile = "out"
	flagLenient = "lenient"
)

func init() {
	exportCmd.Flags().String(flagInputDir, "", "tree region to export")
	exportCmd.Flags().String(flagKind, string(index.Packages), "index kind (Packages or Sources)")
	exportCmd.Flags().StringP(flagOutFile, "o", "", "write the gzip index here instead of plain text to stdout")
	exportCmd.Flags().Bool(flagLenient, false, "skip manifests that fail to decode")

	_ = exportCmd.MarkFlagRequired(flagInputDir)
	_ = exportCmd.MarkFlagDirname(flagInputDir)
}

func runExport(cmd *cobra.Command, _ []string) error {
	log := logr.FromContextOrDiscard(cmd.Context())

	inputDir, _ := cmd.Flags().GetString(flagInputDir)
	kind, err := parseKind(cmd)
	if err != nil {
		return err
	}
	outFile, _ := cmd.Flags().GetString(flagOutFile)
	lenient, _ := cmd.Flags().GetBool(flagLenient)

	var opts []tree.ExportOption
	if lenient {
		opts = append(opts, tree.WithLenient())
	}
	res, err := tree.NewExporter(inputDir, opts...).Export(cmd.Context(), kind)
	if err != nil {
		return err
	}
	for _, p := range res.Skipped {
		log.Info("skipped manifest", "path", p)
	}

	if outFile == "" {
		return res.Index.EncodeText(cmd.OutOrStdout())
	}
	if err := write.Atomically(outFile, func(w io.Writer) error {
		return res.Index.Encode(w)
	}); err != nil {
		return err
	}
	log.Info("wrote index", "path", outFile, "stanzas", len(res.Index.Stanzas))
	return nil
}

func parseKind(cmd *cobra.Command) (index.Kind, error) {
	s, _ := cmd.Flags().GetString(flagKind)
	switch index.Kind(s) {
	case index.Packages, index.Sources:
		return index.Kind(s), nil
	}
	return "", fmt.Errorf("unknown index kind: %q", s)
}
