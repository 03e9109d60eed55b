package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mohammad-safakhou/choir/internal/choir"
	srv "github.com/mohammad-safakhou/choir/internal/server"
	"github.com/spf13/cobra"
)

func askCMD() *cobra.Command {
	var useChoir, verbose bool
	var ask = &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Answer a single prompt from the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			deps, cleanup, err := srv.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			prompt := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			if useChoir {
				res, err := deps.Choir.Run(cmd.Context(), choir.Request{Query: prompt})
				if err != nil {
					return err
				}
				if verbose {
					return printJSON(out, res)
				}
				_, err = fmt.Fprintln(out, res.Answer)
				return err
			}

			res, err := deps.Chat.Run(cmd.Context(), prompt)
			if err != nil {
				return err
			}
			if verbose {
				return printJSON(out, res)
			}
			if res.Truncated {
				logger.WithField("rounds", res.Rounds).Warn("conversation stopped at the round limit")
			}
			_, err = fmt.Fprintln(out, res.Text)
			return err
		},
	}
	ask.Flags().BoolVar(&useChoir, "choir", false, "run the multi-agent pipeline instead of the tool-calling loop")
	ask.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the full result as JSON")
	return ask
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
