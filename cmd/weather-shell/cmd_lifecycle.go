package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/i474232898/weather-shell/internal/config"
	"github.com/i474232898/weather-shell/internal/worker"
)

var cmdInstall = &cobra.Command{
	Use:   "install",
	Short: "Write the application shell into the current cache version",
	Long: `
The "install" command fetches the shell manifest from UPSTREAM_ORIGIN and
stores it in the cache generation of the current version. Install always
skips waiting, so the new version is activated right after and older
generations are deleted.

Only useful with STORAGE_DRIVER=sqlite; an in-memory cache is gone when the
command exits.

EXIT STATUS
===========

Exit status is 0 if every asset was cached, and non-zero otherwise.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstall(cmd.Context())
	},
}

var cmdActivate = &cobra.Command{
	Use:   "activate",
	Short: "Delete every cache generation except the current version",
	Long: `
The "activate" command requires a previous "install" of the current version
and deletes every other cache generation. Use it to finish an activation that
an interrupted install left undone.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runActivate(cmd.Context())
	},
}

func init() {
	cmdRoot.AddCommand(cmdInstall)
	cmdRoot.AddCommand(cmdActivate)
}

func openRuntime() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.StorageDriver != config.StorageSQLite {
		log.Warn("STORAGE_DRIVER is not sqlite; nothing will persist")
	}
	return buildRuntime(cfg)
}

func runInstall(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.ctrl.Install(ctx); err != nil {
		return err
	}
	log.Infof("installed %s", rt.ctrl.Version())
	return nil
}

func runActivate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ok, err := rt.ctrl.Restore(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: run install first", worker.ErrNotInstalled)
	}
	if err := rt.ctrl.Activate(ctx); err != nil {
		return err
	}
	log.Infof("activated %s", rt.ctrl.Version())
	return nil
}
