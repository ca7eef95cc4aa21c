package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	eventsCmd.Flags().Uint64Var(&eventsAfter, "after", 0, "only events after this sequence number")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 100, "maximum events to show")
	rootCmd.AddCommand(eventsCmd)
}

var (
	eventsAfter uint64
	eventsLimit int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List journaled events",
	RunE: func(cmd *cobra.Command, args []string) error {
		evts, err := newClient().Events(cmd.Context(), eventsAfter, eventsLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput() {
			return printJSON(out, evts)
		}
		if len(evts) == 0 {
			fmt.Fprintln(out, "No events.")
			return nil
		}
		tw := table.NewWriter()
		tw.SetOutputMirror(out)
		tw.AppendHeader(table.Row{"Seq", "#", "Kind", "Payload"})
		for _, e := range evts {
			tw.AppendRow(table.Row{e.Seq, e.Index, e.Kind, fmt.Sprint(e.Payload)})
		}
		tw.Render()
		return nil
	},
}
