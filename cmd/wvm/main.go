// wvm runs, inspects and stores register-window machine images.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/colorfulnotion/regwin/common"
	"github.com/colorfulnotion/regwin/config"
	log "github.com/colorfulnotion/regwin/log"
	"github.com/colorfulnotion/regwin/storage"
	"github.com/colorfulnotion/regwin/types"
	"github.com/colorfulnotion/regwin/wvm/program"
	"github.com/spf13/cobra"
)

type app struct {
	cfgPath      string
	logLevel     string
	debugModules string
	dbPath       string

	cfg   *config.Config
	ps    *storage.PersistenceStore
	store *storage.ImageStore
}

func main() {
	a := &app{}
	if err := a.rootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wvm",
		Short: "Register-window virtual machine",
		Long: `wvm executes binary program images (little-endian 32-bit words whose last
word names the entry function) and keeps a content-addressed image store.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default ./"+config.DefaultFile+" when present)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.StringVar(&a.debugModules, "debug", "", "comma separated modules to enable trace/debug output for (wvm, wvm_trace, storage_mod, telemetry, cli, all)")
	pf.StringVar(&a.dbPath, "db", "", "image store directory (overrides storage.path)")

	rootCmd.AddCommand(
		a.runCmd(),
		a.disasmCmd(),
		a.analyzeCmd(),
		a.imageCmd(),
		a.telemetryCmd(),
		traceCmd(),
		versionCmd(),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.dbPath != "" {
		cfg.Storage.Path = a.dbPath
	}
	if err := log.InitLogger(cfg.Log.Level); err != nil {
		return err
	}
	log.EnableModules(strings.Join(cfg.Log.Modules, ","))
	log.EnableModules(a.debugModules)
	a.cfg = cfg
	return nil
}

func (a *app) imageStore() (*storage.ImageStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	ps, err := storage.NewPersistenceStore(a.cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	a.ps = ps
	a.store = storage.NewImageStore(ps)
	return a.store, nil
}

func (a *app) close() error {
	if a.ps == nil {
		return nil
	}
	err := a.ps.Close()
	a.ps, a.store = nil, nil
	return err
}

// loadCode reads a binary image file, or resolves ref in the image store
// when ref is set.
func (a *app) loadCode(args []string, ref string) ([]types.Word, common.Hash, error) {
	if ref != "" {
		s, err := a.imageStore()
		if err != nil {
			return nil, common.Hash{}, err
		}
		h, rec, err := s.Resolve(ref)
		if err != nil {
			return nil, common.Hash{}, err
		}
		return rec.Words, h, nil
	}
	if len(args) != 1 {
		return nil, common.Hash{}, fmt.Errorf("expected one image file or --hash")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, common.Hash{}, err
	}
	code, err := program.DecodeImage(data)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("%s: %w", args[0], err)
	}
	return code, storage.ImageHash(code), nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "wvm %s (commit %s)\n", common.Version, common.GetCommitHash())
			return nil
		},
	}
}
