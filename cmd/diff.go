package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/djcass44/apt-tree/pkg/index"
	"github.com/djcass44/apt-tree/pkg/tree"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <a> <b>",
	Short: "compare two indices or two tree regions",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

func init() {
	diffCmd.Flags().String(flagKind, string(index.Packages), "index kind (Packages or Sources)")
}

func runDiff(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(cmd)
	if err != nil {
		return err
	}

	if isDir(args[0]) && isDir(args[1]) && fingerprintEqual(cmd, args[0], args[1]) {
		return nil
	}

	a, err := loadIndex(cmd, args[0], kind)
	if err != nil {
		return err
	}
	b, err := loadIndex(cmd, args[1], kind)
	if err != nil {
		return err
	}

	cs := index.Diff(a, b)
	out := cmd.OutOrStdout()
	for _, s := range cs.Added {
		fmt.Fprintf(out, "+ %s\n", s.Key())
	}
	for _, s := range cs.Removed {
		fmt.Fprintf(out, "- %s\n", s.Key())
	}
	for _, m := range cs.Modified {
		fmt.Fprintf(out, "~ %s\n", m.After.Key())
	}
	return nil
}

// loadIndex reads an index file (compressed or plain) or exports a tree
// region, depending on what the argument points at.
func loadIndex(cmd *cobra.Command, arg string, kind index.Kind) (*index.Index, error) {
	info, err := os.Stat(arg)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		f, err := os.Open(filepath.Clean(arg))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return index.Decode(f, kind)
	}
	res, err := tree.NewExporter(arg).Export(cmd.Context(), kind)
	if err != nil {
		return nil, err
	}
	return res.Index, nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// fingerprintEqual short-circuits tree-vs-tree comparison.
func fingerprintEqual(cmd *cobra.Command, a, b string) bool {
	log := logr.FromContextOrDiscard(cmd.Context())
	fa, err := tree.Fingerprint(a)
	if err != nil {
		return false
	}
	fb, err := tree.Fingerprint(b)
	if err != nil {
		return false
	}
	if fa == fb {
		log.V(1).Info("tree fingerprints match, skipping stanza diff")
		return true
	}
	return false
}
