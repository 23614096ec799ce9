// Package commands implements the arcforge command line.
package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information, set at build time.
	Version   = "dev"
	GitCommit = "unknown"
)

type rootOptions struct {
	configPath string
	noColor    bool
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "arcforge",
		Short: "Entity definitions, SQL tables and a REST API from one YAML file",
		Long: color.CyanString(`arcforge - a lightweight ORM and query engine

Entities are declared in a YAML definitions file. arcforge creates their
tables on PostgreSQL, MySQL or SQLite, queries them with the filter
mini-language, serves them over REST and exports snapshots to MinIO.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./arcforge.yaml)")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newSchemaCommand(opts))
	rootCmd.AddCommand(newCreateCommand(opts))
	rootCmd.AddCommand(newDropCommand(opts))
	rootCmd.AddCommand(newTablesCommand(opts))
	rootCmd.AddCommand(newQueryCommand(opts))
	rootCmd.AddCommand(newSQLCommand(opts))
	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newExportCommand(opts))

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			title := color.New(color.FgCyan, color.Bold)
			out := cmd.OutOrStdout()
			title.Fprint(out, "arcforge version: ")
			fmt.Fprintln(out, Version)
			title.Fprint(out, "git commit: ")
			fmt.Fprintln(out, GitCommit)
		},
	}
}

// Execute runs the root command and prints any error in red.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
