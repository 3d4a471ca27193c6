package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/ascart/internal/version"
)

func newVersionCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Read()
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintln(out, info.String()); err != nil || !verbose {
				return err
			}
			revision := info.Revision
			if revision == "" {
				revision = "unknown"
			}
			if info.Dirty {
				revision += " (dirty)"
			}
			_, err := fmt.Fprintf(out, "revision: %s\ngo: %s\n", revision, info.GoVersion)
			return err
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include revision and Go version")
	return cmd
}
