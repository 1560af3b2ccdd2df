// Command mirrord serves the clipkeeper mirror over gRPC and issues
// account tokens for devices.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/clipkeeper/internal/flagx"
	"github.com/dmitrijs2005/clipkeeper/internal/logging"
	"github.com/dmitrijs2005/clipkeeper/internal/server"
	"github.com/dmitrijs2005/clipkeeper/internal/server/config"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	configArgs, cmdArgs := flagx.SplitArgs(args, config.FlagNames)

	var app *server.App
	setup := func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig(configArgs)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.LogOptions())
		if err != nil {
			return err
		}
		app, err = server.NewApp(cmd.Context(), cfg, logger)
		return err
	}

	root := &cobra.Command{
		Use:   "mirrord",
		Short: "clipkeeper mirror server",
		Long: `mirrord keeps the per-account document mirror that clipkeeper devices sync with.

Configuration flags (before or after the command):
  -c, -config   JSON config file
  -a            gRPC bind address
  -k            backend: memory, postgres or s3
  -d            PostgreSQL DSN
  -s            JWT secret
  -t            token validity (minutes)
  -u -p -b -g -e  S3 user, password, bucket, region, endpoint
  -l            log level`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC mirror server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "token <account-id>",
		Short: "Issue an access token for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			token, err := app.IssueToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	})

	root.SetArgs(cmdArgs)
	return root.ExecuteContext(ctx)
}
