package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/mohammad-safakhou/choir/internal/logging"
	srv "github.com/mohammad-safakhou/choir/internal/server"
	"github.com/spf13/cobra"
)

func toolsCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the functions the model may call",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			registry, cleanup, err := srv.BuildRegistry(cmd.Context(), cfg, logging.Component(logger, "tools"), nil)
			if err != nil {
				return err
			}
			defer cleanup()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCHECKSUM\tDESCRIPTION")
			for _, d := range registry.List() {
				fmt.Fprintf(tw, "%s\t%.12s\t%s\n", d.Name, d.Checksum, d.Description)
			}
			return tw.Flush()
		},
	}
}
