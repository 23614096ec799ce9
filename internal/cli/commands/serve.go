package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/koustreak/arcforge/internal/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		host        string
		port        int
		createFirst bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the defined entities over REST",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, opts, func(ctx context.Context, a *app) error {
				if cmd.Flags().Changed("host") {
					a.cfg.Server.Host = host
				}
				if cmd.Flags().Changed("port") {
					a.cfg.Server.Port = port
				}
				if createFirst {
					for _, m := range a.metas {
						exists, err := a.eng.TableExists(ctx, m)
						if err != nil {
							return err
						}
						if !exists {
							if err := a.eng.CreateTable(ctx, m); err != nil {
								return err
							}
						}
					}
				}

				srv := server.New(a.eng, a.reg, server.Config{
					Addr:         a.cfg.Server.Addr(),
					ReadTimeout:  a.cfg.Server.ReadTimeout,
					WriteTimeout: a.cfg.Server.WriteTimeout,
				}, a.log)
				fmt.Fprintf(cmd.OutOrStdout(), "%s http://%s\n", color.GreenString("serving"), a.cfg.Server.Addr())
				return srv.ListenAndServe(ctx)
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().BoolVar(&createFirst, "create", false, "create missing tables before serving")
	return cmd
}
