package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koustreak/arcforge/internal/errs"
	"github.com/koustreak/arcforge/internal/query"
)

// parseAssignments turns key=value arguments into filter parameters.
// A repeated key is joined with commas.
func parseAssignments(args []string) (map[string]any, error) {
	params := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "expected key=value, got %q", arg)
		}
		if prev, dup := params[key]; dup {
			value = prev.(string) + "," + value
		}
		params[key] = value
	}
	return params, nil
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var showSQL bool

	cmd := &cobra.Command{
		Use:   "query <entity> [key=value...]",
		Short: "Query an entity with the filter mini-language",
		Long: `Query an entity. Each argument is a filter or a query option:

  nome__like=ana        column operator value
  cliente.nome=Ana      column of a joined entity
  select=cliente_id,COUNT(*) AS qtd
  group_by=cliente_id   having=qtd__gt=1
  order_by=-total       limit=10  offset=20

One matching row prints as an object, anything else as an array.`,
		Example: `  arcforge query Pedido total__gte=10 order_by=-total limit=5`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			spec, err := query.ParseParams(params)
			if err != nil {
				return err
			}
			return run(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				meta, err := a.entity(args[0])
				if err != nil {
					return err
				}
				if showSQL {
					stmt, err := query.BuildSelect(a.eng.Dialect(), meta, spec)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), stmt.SQL)
					if len(stmt.Args) > 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "-- args: %v\n", stmt.Args)
					}
					return nil
				}

				res, err := a.eng.Query(ctx, meta, spec)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}

	cmd.Flags().BoolVar(&showSQL, "sql", false, "print the generated statement instead of running it")
	return cmd
}

func newSQLCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sql <statement> [arg...]",
		Short: "Run a raw SQL statement and print the rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				binds := make([]any, 0, len(args)-1)
				for _, arg := range args[1:] {
					binds = append(binds, arg)
				}
				rows, err := a.eng.ExecuteSQL(ctx, args[0], binds...)
				if err != nil {
					return err
				}
				return printJSON(cmd, rows)
			})
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
