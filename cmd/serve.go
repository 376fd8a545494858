package cmd

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve dists files from a local tree, proxying everything else upstream",
	RunE:  runServe,
}

const (
	flagAddr     = "addr"
	flagDistsDir = "dists-dir"
	flagUpstream = "upstream"
)

func init() {
	serveCmd.Flags().String(flagAddr, "localhost:8000", "listen address")
	serveCmd.Flags().String(flagDistsDir, "", "directory holding exported dists files")
	serveCmd.Flags().String(flagUpstream, "http://deb.debian.org", "upstream repository to proxy")

	_ = serveCmd.MarkFlagRequired(flagDistsDir)
	_ = serveCmd.MarkFlagDirname(flagDistsDir)
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := logr.FromContextOrDiscard(cmd.Context())

	addr, _ := cmd.Flags().GetString(flagAddr)
	distsDir, _ := cmd.Flags().GetString(flagDistsDir)
	upstream, _ := cmd.Flags().GetString(flagUpstream)

	target, err := url.Parse(upstream)
	if err != nil {
		return err
	}
	proxy := httputil.NewSingleHostReverseProxy(target)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, rest, ok := strings.Cut(r.URL.Path, "/dists/"); ok {
			// Clean with a rooted path so ".." cannot escape distsDir
			local := filepath.Join(distsDir, filepath.FromSlash(path.Clean("/"+rest)))
			if info, err := os.Stat(local); err == nil && info.Mode().IsRegular() {
				log.V(1).Info("serving local file", "path", r.URL.Path)
				http.ServeFile(w, r, local)
				return
			}
			log.V(1).Info("no local file, falling back to upstream", "path", r.URL.Path)
		}
		proxy.ServeHTTP(w, r)
	})

	log.Info("serving", "addr", addr, "dists", distsDir, "upstream", upstream)
	return http.ListenAndServe(addr, handler)
}
