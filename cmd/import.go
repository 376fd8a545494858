package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	aptv1 "github.com/djcass44/apt-tree/pkg/api/v1"
	"github.com/djcass44/apt-tree/pkg/fetch"
	"github.com/djcass44/apt-tree/pkg/index"
	"github.com/djcass44/apt-tree/pkg/pool"
	"github.com/djcass44/apt-tree/pkg/tree"
	"github.com/drone/envsubst"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/yaml"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "import repository indices into a tree",
	RunE:  runImport,
}

const (
	flagConfig   = "config"
	flagRepo     = "repo"
	flagInputDir = "input-dir"
	flagOutput   = "output-dir"
	flagDist     = "dist"
	flagComp     = "comp"
	flagArch     = "arch"
	flagCacheDir = "cache-dir"
	flagFetch    = "fetch-artifacts"
	flagNoPrune  = "no-prune"
	flagSkipPool = "skip-pool-mismatch"
)

func init() {
	importCmd.Flags().StringP(flagConfig, "c", "", "path to a mirror configuration file")
	importCmd.Flags().String(flagRepo, "", "repository base URL (e.g. https://ftp.debian.org/debian)")
	importCmd.Flags().String(flagInputDir, "", "local directory containing Packages.gz/Sources.gz files")
	importCmd.Flags().StringP(flagOutput, "o", "debian_packages", "destination tree")
	importCmd.Flags().String(flagDist, "stable", "distributions to import")
	importCmd.Flags().String(flagComp, "main,contrib", "repository components to import")
	importCmd.Flags().String(flagArch, "binary-amd64,source", "architectures to import")
	importCmd.Flags().String(flagCacheDir, "", "download cache directory (defaults to user cache dir)")
	importCmd.Flags().Bool(flagFetch, false, "download referenced pool artifacts")
	importCmd.Flags().Bool(flagNoPrune, false, "keep manifests the index no longer contains")
	importCmd.Flags().Bool(flagSkipPool, false, "skip pool entries whose hash mismatches instead of aborting")

	importCmd.MarkFlagsMutuallyExclusive(flagConfig, flagRepo, flagInputDir)
	_ = importCmd.MarkFlagFilename(flagConfig, ".yaml", ".yml")
	_ = importCmd.MarkFlagDirname(flagInputDir)
	_ = importCmd.MarkFlagDirname(flagOutput)
}

func runImport(cmd *cobra.Command, _ []string) error {
	output, _ := cmd.Flags().GetString(flagOutput)
	inputDir, _ := cmd.Flags().GetString(flagInputDir)

	if inputDir != "" {
		return importLocal(cmd.Context(), cmd, inputDir, output)
	}

	mirror, err := mirrorFromFlags(cmd)
	if err != nil {
		return err
	}
	return importRemote(cmd.Context(), cmd, mirror, output)
}

// mirrorFromFlags assembles the mirror selection from the config file or
// the debrepoctl-style csv flags.
func mirrorFromFlags(cmd *cobra.Command) (*aptv1.Mirror, error) {
	configPath, _ := cmd.Flags().GetString(flagConfig)
	if configPath != "" {
		return readMirrorConfig(configPath)
	}
	repo, _ := cmd.Flags().GetString(flagRepo)
	if repo == "" {
		return nil, errors.New("one of --config, --repo or --input-dir is required")
	}
	dist, _ := cmd.Flags().GetString(flagDist)
	comp, _ := cmd.Flags().GetString(flagComp)
	arch, _ := cmd.Flags().GetString(flagArch)
	mirror := &aptv1.Mirror{Spec: aptv1.MirrorSpec{
		URL:           repo,
		Distributions: strings.Split(dist, ","),
		Components:    strings.Split(comp, ","),
		Architectures: strings.Split(arch, ","),
	}}
	return mirror.Defaulted(), nil
}

func readMirrorConfig(s string) (*aptv1.Mirror, error) {
	f, err := os.Open(filepath.Clean(s))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var mirror aptv1.Mirror
	if err := yaml.NewYAMLOrJSONDecoder(f, 4).Decode(&mirror); err != nil {
		return nil, err
	}
	mirror.Spec.URL, err = envsubst.EvalEnv(mirror.Spec.URL)
	if err != nil {
		return nil, err
	}
	return mirror.Defaulted(), nil
}

func importRemote(ctx context.Context, cmd *cobra.Command, mirror *aptv1.Mirror, output string) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("repo", mirror.Spec.URL)

	cacheDir, _ := cmd.Flags().GetString(flagCacheDir)
	client, err := fetch.NewClient(strings.TrimSuffix(mirror.Spec.URL, "/"), getCacheDir(cacheDir))
	if err != nil {
		return err
	}

	for _, dist := range mirror.Spec.Distributions {
		for _, comp := range mirror.Spec.Components {
			for _, arch := range mirror.Spec.Architectures {
				kind := index.KindForArch(arch)
				idx, err := fetchIndex(ctx, client, dist, comp, arch, kind)
				if err != nil {
					return err
				}
				root := filepath.Join(output, dist, comp, arch)
				if err := importIndex(ctx, cmd, client, idx, root, output); err != nil {
					return err
				}
				log.Info("imported index", "dist", dist, "component", comp, "arch", arch, "stanzas", len(idx.Stanzas))
			}
		}
	}
	return nil
}

// fetchIndex downloads the gzip index, falling back to xz when the
// repository only publishes that flavour.
func fetchIndex(ctx context.Context, client *fetch.Client, dist, comp, arch string, kind index.Kind) (*index.Index, error) {
	var lastErr error
	for _, filename := range []string{kind.Filename(), kind.FilenameXZ()} {
		local, err := client.Fetch(ctx, path.Join("dists", dist, comp, arch, filename))
		if err != nil {
			if errors.Is(err, fetch.ErrNotFound) {
				lastErr = err
				continue
			}
			return nil, err
		}
		f, err := os.Open(filepath.Clean(local))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return index.Decode(f, kind)
	}
	return nil, fmt.Errorf("no index file published for %s/%s/%s: %w", dist, comp, arch, lastErr)
}

func importLocal(ctx context.Context, cmd *cobra.Command, inputDir, output string) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("dir", inputDir)

	return filepath.WalkDir(inputDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		var kind index.Kind
		switch d.Name() {
		case "Packages.gz", "Packages.xz":
			kind = index.Packages
		case "Sources.gz", "Sources.xz":
			kind = index.Sources
		default:
			return nil
		}
		log.Info("importing local index", "path", p)

		f, err := os.Open(filepath.Clean(p))
		if err != nil {
			return err
		}
		defer f.Close()
		idx, err := index.Decode(f, kind)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(inputDir, filepath.Dir(p))
		if err != nil {
			return err
		}
		return importIndex(ctx, cmd, nil, idx, filepath.Join(output, rel), output)
	})
}

func importIndex(ctx context.Context, cmd *cobra.Command, fetcher *fetch.Client, idx *index.Index, root, output string) error {
	log := logr.FromContextOrDiscard(ctx)

	noPrune, _ := cmd.Flags().GetBool(flagNoPrune)
	skipPool, _ := cmd.Flags().GetBool(flagSkipPool)
	fetchArtifacts, _ := cmd.Flags().GetBool(flagFetch)

	opts := []tree.Option{
		tree.WithPool(pool.NewStore(filepath.Join(output, "pool"))),
	}
	if !noPrune {
		opts = append(opts, tree.WithPrune())
	}
	if skipPool {
		opts = append(opts, tree.WithSkipPoolMismatch())
	}
	if fetchArtifacts && fetcher != nil {
		opts = append(opts, tree.WithFetcher(fetcher))
	}

	report, err := tree.NewImporter(root, opts...).Import(ctx, idx)
	if err != nil {
		return err
	}
	log.Info("import report",
		"added", len(report.Added), "updated", len(report.Updated),
		"unchanged", len(report.Unchanged), "removed", len(report.Removed),
		"poolAdded", len(report.PoolAdded), "skippedPool", len(report.SkippedPool))
	return nil
}

func getCacheDir(d string) string {
	if d == "" {
		d, _ = os.UserCacheDir()
		d = filepath.Join(d, "apt-tree")
	}
	return filepath.Clean(d)
}
