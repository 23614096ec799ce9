package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/koustreak/arcforge/internal/database"
)

func dialectFor(driver database.Driver) database.Dialect {
	switch driver {
	case database.DriverMySQL:
		return database.DialectMySQL
	case database.DriverSQLite:
		return database.DialectSQLite
	default:
		return database.DialectPostgres
	}
}

func newSchemaCommand(opts *rootOptions) *cobra.Command {
	var driver string

	cmd := &cobra.Command{
		Use:   "schema [entity...]",
		Short: "Print the CREATE TABLE statements for the defined entities",
		Long: `Print the DDL arcforge would run for each entity, link tables included,
in dependency order. Nothing is executed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			metas, err := a.selected(args)
			if err != nil {
				return err
			}

			d := dialectFor(a.cfg.Database.Driver)
			if driver != "" {
				d = dialectFor(database.Driver(driver))
			}
			out := cmd.OutOrStdout()
			for _, m := range metas {
				fmt.Fprintln(out, color.HiBlackString("-- %s", m.Name()))
				fmt.Fprintf(out, "%s;\n", m.Schema(d))
				for _, link := range m.LinkSchemas(d) {
					fmt.Fprintf(out, "%s;\n", link)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "render for this driver instead of the configured one")
	return cmd
}

func newCreateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create [entity...]",
		Short: "Create missing tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				metas, err := a.selected(args)
				if err != nil {
					return err
				}
				for _, m := range metas {
					exists, err := a.eng.TableExists(ctx, m)
					if err != nil {
						return err
					}
					if exists {
						fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.YellowString("exists "), m.Table())
						continue
					}
					if err := a.eng.CreateTable(ctx, m); err != nil {
						return fmt.Errorf("create %s: %w", m.Table(), err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("created"), m.Table())
				}
				return nil
			})
		},
	}
}

func newDropCommand(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "drop [entity...]",
		Short: "Drop tables, dependents first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to drop tables without --yes")
			}
			return run(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				metas, err := a.selected(args)
				if err != nil {
					return err
				}
				for i := len(metas) - 1; i >= 0; i-- {
					m := metas[i]
					if err := a.eng.DeleteTable(ctx, m); err != nil {
						return fmt.Errorf("drop %s: %w", m.Table(), err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.RedString("dropped"), m.Table())
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the drop")
	return cmd
}

func newTablesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables present in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				tables, err := a.eng.ListTables(ctx)
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout(), "TABLE", "ENTITY")
				for _, name := range tables {
					entity := "-"
					if m, ok := a.reg.LookupTable(name); ok {
						entity = m.Name()
					}
					t.addRow(name, entity)
				}
				t.render()
				return nil
			})
		},
	}
}
