package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shatzii/sentinel/internal/logs"
)

func newLogsCmd(a *app) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:       "logs <security|audit|error>",
		Short:     "Print the most recent lines of a Sentinel log",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(logs.KindSecurity), string(logs.KindAudit), string(logs.KindError)},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := a.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			lc := cfg.Logging
			reader := logs.NewReader(lc.SecurityPath(), lc.AuditPath(), lc.ErrorPath())
			recent, err := reader.Recent(logs.Kind(args[0]), lines)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range recent {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", logs.DefaultMaxLines, "number of lines to show")
	return cmd
}
