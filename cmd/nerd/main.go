// Package main is the entry point and command registration hub for
// nerd, the operator CLI over the core execution substrate: nerd run
// drives the patch pipeline, nerd status reports workspace and budget
// state, nerd locks inspects the soft-lock store, and nerd retrieve
// exercises the hybrid retrieval pipeline directly. Grounded in the
// teacher's cmd/nerd/main.go root-command-plus-global-flags layout.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"codenerd-core/internal/config"
	"codenerd-core/internal/logging"
)

var (
	workspace  string
	configPath string
	verbose    bool
	timeout    time.Duration

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nerd",
	Short: "codenerd-core operator CLI",
	Long: `nerd drives the core execution substrate: a transactional patch
pipeline, a multi-agent lock coordinator, and a hybrid retrieval
pipeline over a local workspace's code graph.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ws := workspace
		if ws == "" {
			var err error
			ws, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("nerd: getwd: %w", err)
			}
		}
		abs, err := filepath.Abs(ws)
		if err != nil {
			return fmt.Errorf("nerd: resolve workspace: %w", err)
		}
		workspace = abs

		path := configPath
		if path == "" {
			path = filepath.Join(workspace, ".nerd", "config.yaml")
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("nerd: load config: %w", err)
		}
		if verbose {
			cfg.Logging.DebugMode = true
		}
		logging.Configure(logging.Config{DebugMode: cfg.Logging.DebugMode, Dir: filepath.Join(workspace, cfg.Logging.Dir)})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace root (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: <workspace>/.nerd/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level category logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "per-command operation timeout")

	rootCmd.AddCommand(runCmd, statusCmd, locksCmd, retrieveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
