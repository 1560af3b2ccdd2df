package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/clipkeeper/internal/client/config"
	"github.com/dmitrijs2005/clipkeeper/internal/client/services"
	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/flagx"
	"github.com/dmitrijs2005/clipkeeper/internal/logging"
)

// Execute runs the command line in args (without the program name),
// writing user-facing output to out.
func Execute(ctx context.Context, args []string, out io.Writer) error {
	configArgs, cmdArgs := flagx.SplitArgs(args, config.FlagNames)

	var app *App
	root := &cobra.Command{
		Use:           "clipkeeper",
		Short:         "Sync clips, files and filters with the clipkeeper mirror",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configArgs)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Options())
			if err != nil {
				return err
			}
			app, err = NewApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			app.out = cmd.OutOrStdout()
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return app.Close()
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "sync",
			Short: "Run one sync pass over every kind",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return app.Sync(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "daemon",
			Short: "Sync periodically until interrupted",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return app.Daemon(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "import <file>",
			Short: "Merge a legacy snapshot into the local store",
			Args:  cobra.ExactArgs(1),
			RunE:  func(cmd *cobra.Command, args []string) error { return app.Import(cmd.Context(), args[0]) },
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show pending changes and sync checkpoints",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return app.Status(cmd.Context()) },
		},
		filesCommand(&app),
	)

	root.SetArgs(cmdArgs)
	root.SetOut(out)
	err := root.ExecuteContext(ctx)
	if err != nil && app != nil {
		// PersistentPostRunE does not run after a failed RunE.
		_ = app.Close()
	}
	return err
}

// Sync runs one pass. Remote failures leave changes pending and are
// reported, not returned.
func (app *App) Sync(ctx context.Context) error {
	results, err := app.coordinator.SyncAll(ctx)

	w := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tPULLED\tAPPLIED\tDELETED\tCONFLICTS\tPUSHED\tFAILED")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n", r.Kind, r.Pulled, r.Applied, r.Deleted, r.Conflicts, r.Pushed, r.Failed)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}

	if err != nil && common.IsRetryable(err) {
		pending, _ := app.syncState.Pending.GetValue()
		fmt.Fprintf(app.out, "sync pending: %d local changes not yet mirrored (%v)\n", pending, err)
		return nil
	}
	return err
}

// Daemon syncs every configured interval until ctx is done or the process
// is interrupted.
func (app *App) Daemon(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	stop := app.watchSyncState(ctx)
	defer stop()

	scheduler := services.NewScheduler(app.coordinator, app.config.SyncInterval, app.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	app.logger.Info(ctx, "sync daemon started", "interval", app.config.SyncInterval.String(), "device", app.store.DeviceID())
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Import merges the snapshot at path.
func (app *App) Import(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := app.importer.Import(ctx, f)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.out, "imported %d clips, skipped %d; tags created %d, reused %d\n",
		res.ClipsImported, res.ClipsSkipped, res.TagsCreated, res.TagsReused)
	for _, e := range res.Errors {
		fmt.Fprintf(app.out, "  %v\n", e)
	}
	fmt.Fprintf(app.out, "source digest %s\n", res.SourceDigest)
	return nil
}

// Status prints per-kind counts and checkpoints.
func (app *App) Status(ctx context.Context) error {
	checkpoints, err := app.store.Checkpoints(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.out, "device %s\n", app.store.DeviceID())
	w := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tACTIVE\tDELETED\tPENDING\tCHECKPOINT")
	for _, kind := range common.Kinds {
		active, err := app.store.ListActive(ctx, kind)
		if err != nil {
			return err
		}
		deleted, err := app.store.ListTombstones(ctx, kind)
		if err != nil {
			return err
		}
		pending, err := app.store.ListPending(ctx, kind)
		if err != nil {
			return err
		}
		cp := checkpoints[kind]
		if cp == "" {
			cp = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", kind, len(active), len(deleted), len(pending), cp)
	}
	return w.Flush()
}
