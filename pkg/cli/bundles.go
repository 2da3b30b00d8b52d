package cli

import (
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/codegate-dev/codegate/pkg/config"
)

var bundlesCmd = &cobra.Command{
	Use:   "bundles",
	Short: "List loaded policy bundles and their merged hashes",
	RunE:  runBundles,
}

func init() {
	rootCmd.AddCommand(bundlesCmd)
}

type bundleInfo struct {
	Name  string `json:"name"`
	Rules int    `json:"rules"`
	Hash  string `json:"hash"`
}

func runBundles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loader := config.NewBundleLoader(filepath.Join(repoRoot, cfg.BundleDir))
	if err := loader.LoadAll(); err != nil {
		return err
	}

	names := loader.Names()
	sort.Strings(names)
	infos := make([]bundleInfo, 0, len(names))
	for _, name := range names {
		merged, hash, err := loader.Active(name)
		if err != nil {
			return err
		}
		infos = append(infos, bundleInfo{Name: name, Rules: len(merged), Hash: hash})
	}
	return printJSON(cmd, infos)
}
