package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/koustreak/arcforge/internal/errs"
	"github.com/koustreak/arcforge/internal/export"
	"github.com/koustreak/arcforge/internal/filestore"
	"github.com/koustreak/arcforge/internal/filestore/minio"
	"github.com/koustreak/arcforge/internal/model"
)

func newExportCommand(opts *rootOptions) *cobra.Command {
	var (
		bucket  string
		presign time.Duration
		list    bool
	)

	cmd := &cobra.Command{
		Use:   "export [entity...]",
		Short: "Upload JSON snapshots of entity tables to object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				cfg := a.cfg.Export
				if bucket != "" {
					cfg.Bucket = bucket
				}
				if cmd.Flags().Changed("presign") {
					cfg.PresignTTL = presign
				}
				if cfg.Provider != filestore.ProviderMinIO {
					return errs.Newf(errs.ErrKindInvalidInput, "unsupported export provider %q", cfg.Provider)
				}

				metas, err := a.selected(args)
				if err != nil {
					return err
				}
				store, err := minio.New(ctx, &cfg)
				if err != nil {
					return err
				}
				defer store.Close()

				x := export.New(a.eng, store, &cfg, a.log)
				if list {
					return listSnapshots(ctx, cmd, x, metas)
				}

				snaps, err := x.Export(ctx, metas)
				t := newTable(cmd.OutOrStdout(), "ENTITY", "ROWS", "SIZE", "KEY", "URL")
				for _, s := range snaps {
					t.addRow(s.Entity, fmt.Sprint(s.Rows), fmt.Sprint(s.Size), s.Key, s.URL)
				}
				t.render()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d snapshot(s) to %s\n", color.GreenString("exported"), len(snaps), cfg.Bucket)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "target bucket (overrides export.bucket)")
	cmd.Flags().DurationVar(&presign, "presign", 0, "attach presigned download URLs valid for this long")
	cmd.Flags().BoolVar(&list, "list", false, "list existing snapshots instead of exporting")
	return cmd
}

func listSnapshots(ctx context.Context, cmd *cobra.Command, x *export.Exporter, metas []*model.Meta) error {
	t := newTable(cmd.OutOrStdout(), "KEY", "SIZE", "MODIFIED")
	for _, m := range metas {
		objs, err := x.List(ctx, m)
		if err != nil {
			return err
		}
		for _, o := range objs {
			t.addRow(o.Key, fmt.Sprint(o.Size), o.LastModified.UTC().Format(time.RFC3339))
		}
	}
	t.render()
	return nil
}
