package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/clawchain/clawmarket/internal/domain"
	"github.com/clawchain/clawmarket/internal/node"
)

func init() {
	reviewCmd.Flags().StringVar(&reviewComment, "comment", "", "review comment")
	reviewCmd.Flags().Uint64Var(&reviewTask, "task", 0, "task the review refers to")
	slashCmd.Flags().StringVar(&slashReason, "reason", "", "reason recorded in the target's history")
	ledgerCmd.Flags().IntVar(&ledgerLimit, "limit", 20, "number of entries to show")

	repCmd.AddCommand(repShowCmd, repHistoryCmd)
	rootCmd.AddCommand(reviewCmd, slashCmd, repCmd, balanceCmd, ledgerCmd, whoamiCmd, statusCmd)
}

var (
	reviewComment string
	reviewTask    uint64
	slashReason   string
	ledgerLimit   int
)

var reviewCmd = &cobra.Command{
	Use:   "review REVIEWEE RATING",
	Short: "Rate another account from 1 to 5",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rating, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			return fmt.Errorf("invalid rating %q", args[1])
		}
		r, err := newClient().Review(cmd.Context(), node.SubmitReview{
			Reviewee: domain.AccountID(args[0]),
			Rating:   uint8(rating),
			Comment:  node.Bytes(reviewComment),
			TaskID:   domain.TaskID(reviewTask),
		})
		return printReceipt(cmd.OutOrStdout(), r, err)
	},
}

var slashCmd = &cobra.Command{
	Use:   "slash TARGET AMOUNT",
	Short: "Reduce an account's reputation (root only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid slash amount %q", args[1])
		}
		r, err := newClient().Slash(cmd.Context(), node.SlashReputation{
			Target: domain.AccountID(args[0]),
			Amount: uint32(amount),
			Reason: node.Bytes(slashReason),
		})
		return printReceipt(cmd.OutOrStdout(), r, err)
	},
}

var repCmd = &cobra.Command{
	Use:   "rep",
	Short: "Inspect reputation",
}

var repShowCmd = &cobra.Command{
	Use:   "show [ACCOUNT]",
	Short: "Show an account's reputation record",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acc, err := accountArg(args)
		if err != nil {
			return err
		}
		rec, err := newClient().Reputation(cmd.Context(), acc)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput() {
			return printJSON(out, rec)
		}
		fmt.Fprintf(out, "Account:        %s\n", rec.Account)
		fmt.Fprintf(out, "Score:          %d / %d\n", rec.Score, domain.MaxScore)
		fmt.Fprintf(out, "Tasks done:     %d (%d successful)\n", rec.TotalTasksCompleted, rec.SuccessfulCompletions)
		fmt.Fprintf(out, "Tasks posted:   %d\n", rec.TotalTasksPosted)
		fmt.Fprintf(out, "Earned / spent: %s / %s\n", amountStr(rec.TotalEarned), amountStr(rec.TotalSpent))
		fmt.Fprintf(out, "Disputes:       %d won, %d lost\n", rec.DisputesWon, rec.DisputesLost)
		return nil
	},
}

var repHistoryCmd = &cobra.Command{
	Use:   "history [ACCOUNT]",
	Short: "Show an account's recent reputation changes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acc, err := accountArg(args)
		if err != nil {
			return err
		}
		hist, err := newClient().History(cmd.Context(), acc)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput() {
			return printJSON(out, hist)
		}
		if len(hist) == 0 {
			fmt.Fprintln(out, "No history.")
			return nil
		}
		tw := table.NewWriter()
		tw.SetOutputMirror(out)
		tw.AppendHeader(table.Row{"Seq", "Kind", "Delta", "Score", "Counterparty", "Reason"})
		for _, h := range hist {
			tw.AppendRow(table.Row{h.Seq, h.Kind, fmt.Sprintf("%+d", h.Delta), h.ScoreAfter, h.Counterparty, string(h.Reason)})
		}
		tw.Render()
		return nil
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance [ACCOUNT]",
	Short: "Show free and reserved balance",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acc, err := accountArg(args)
		if err != nil {
			return err
		}
		b, err := newClient().Balance(cmd.Context(), acc)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput() {
			return printJSON(out, b)
		}
		fmt.Fprintf(out, "%s: free %s, reserved %s\n", b.Account, amountStr(b.Free), amountStr(b.Reserved))
		return nil
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger [ACCOUNT]",
	Short: "Show an account's double-entry ledger",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acc, err := accountArg(args)
		if err != nil {
			return err
		}
		entries, err := newClient().Ledger(cmd.Context(), acc, ledgerLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput() {
			return printJSON(out, entries)
		}
		tw := table.NewWriter()
		tw.SetOutputMirror(out)
		tw.AppendHeader(table.Row{"Seq", "Type", "Entry", "Bucket", "Amount", "Balance"})
		for _, e := range entries {
			tw.AppendRow(table.Row{e.Seq, e.Type, e.EntryType, e.Bucket, amountStr(e.Amount), amountStr(e.Balance)})
		}
		tw.Render()
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity the node resolves for you",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newClient().WhoAmI(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput() {
			return printJSON(out, w)
		}
		role := "signed"
		if w.Root {
			role = "root"
		}
		fmt.Fprintf(out, "%s (%s, via %s)\n", w.Account, role, w.Source)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node status",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newClient().Status(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput() {
			return printJSON(out, s)
		}
		fmt.Fprintf(out, "Node:    %s (%s)\n", s.NodeID, s.Version)
		fmt.Fprintf(out, "Seq:     %d\n", s.Seq)
		fmt.Fprintf(out, "Tasks:   %d\n", s.TaskCount)
		fmt.Fprintf(out, "Escrow:  %s\n", amountStr(s.Escrow))
		return nil
	},
}

// accountArg returns the positional account, defaulting to --account.
func accountArg(args []string) (domain.AccountID, error) {
	if len(args) == 1 {
		return domain.AccountID(args[0]), nil
	}
	if acc := newClient().Account; acc != "" {
		return domain.AccountID(acc), nil
	}
	return "", errors.New("account required (pass it or set --account)")
}
