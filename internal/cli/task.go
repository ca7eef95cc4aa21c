package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/clawchain/clawmarket/internal/client"
	"github.com/clawchain/clawmarket/internal/domain"
	"github.com/clawchain/clawmarket/internal/node"
)

func init() {
	taskPostCmd.Flags().StringVar(&postDescription, "description", "", "task description")
	taskPostCmd.Flags().StringVar(&postReward, "reward", "", "reward to escrow (required)")
	taskPostCmd.Flags().Uint64Var(&postDeadline, "deadline", 0, "deadline (informational)")
	_ = taskPostCmd.MarkFlagRequired("reward")

	taskBidCmd.Flags().StringVar(&bidProposal, "proposal", "", "bid proposal text")
	taskSubmitCmd.Flags().StringVar(&submitProof, "proof", "", "proof of work")
	taskDisputeCmd.Flags().StringVar(&disputeReason, "reason", "", "dispute reason")

	taskListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (OPEN, ASSIGNED, ...)")
	taskListCmd.Flags().StringVar(&listPoster, "poster", "", "filter by poster")
	taskListCmd.Flags().StringVar(&listAssignee, "assignee", "", "filter by assignee")
	taskListCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum tasks to show")

	taskCmd.AddCommand(taskPostCmd, taskBidCmd, taskAssignCmd, taskSubmitCmd,
		taskApproveCmd, taskDisputeCmd, taskResolveCmd, taskCancelCmd,
		taskShowCmd, taskListCmd)
	rootCmd.AddCommand(taskCmd)
}

var (
	postDescription string
	postReward      string
	postDeadline    uint64
	bidProposal     string
	submitProof     string
	disputeReason   string
	listStatus      string
	listPoster      string
	listAssignee    string
	listLimit       int
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Post, bid on and settle tasks",
}

var taskPostCmd = &cobra.Command{
	Use:   "post TITLE",
	Short: "Post a task and escrow its reward",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reward, err := amountArg(postReward)
		if err != nil {
			return err
		}
		r, err := newClient().PostTask(cmd.Context(), node.PostTask{
			Title:       node.Bytes(args[0]),
			Description: node.Bytes(postDescription),
			Reward:      reward,
			Deadline:    postDeadline,
		})
		return printReceipt(cmd.OutOrStdout(), r, err)
	},
}

var taskBidCmd = &cobra.Command{
	Use:   "bid TASK_ID AMOUNT",
	Short: "Bid on an open task (rebidding replaces your bid)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		amount, err := amountArg(args[1])
		if err != nil {
			return err
		}
		r, err := newClient().Bid(cmd.Context(), node.BidOnTask{TaskID: id, Amount: amount, Proposal: node.Bytes(bidProposal)})
		return printReceipt(cmd.OutOrStdout(), r, err)
	},
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign TASK_ID BIDDER",
	Short: "Assign a task to one of its bidders",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		r, err := newClient().Assign(cmd.Context(), node.AssignTask{TaskID: id, Bidder: domain.AccountID(args[1])})
		return printReceipt(cmd.OutOrStdout(), r, err)
	},
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit TASK_ID",
	Short: "Submit work for an assigned task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		r, err := newClient().Submit(cmd.Context(), node.SubmitWork{TaskID: id, Proof: node.Bytes(submitProof)})
		return printReceipt(cmd.OutOrStdout(), r, err)
	},
}

var taskApproveCmd = &cobra.Command{
	Use:   "approve TASK_ID",
	Short: "Approve submitted work and release the reward",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		r, err := newClient().Approve(cmd.Context(), id)
		return printReceipt(cmd.OutOrStdout(), r, err)
	},
}

var taskDisputeCmd = &cobra.Command{
	Use:   "dispute TASK_ID",
	Short: "Dispute an assigned or submitted task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		r, err := newClient().Dispute(cmd.Context(), node.DisputeTask{TaskID: id, Reason: node.Bytes(disputeReason)})
		return printReceipt(cmd.OutOrStdout(), r, err)
	},
}

var taskResolveCmd = &cobra.Command{
	Use:   "resolve TASK_ID WINNER",
	Short: "Resolve a dispute in favour of the poster or the worker (root only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		r, err := newClient().Resolve(cmd.Context(), node.ResolveDispute{TaskID: id, Winner: domain.AccountID(args[1])})
		return printReceipt(cmd.OutOrStdout(), r, err)
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel TASK_ID",
	Short: "Cancel an open task and refund its reward",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		r, err := newClient().Cancel(cmd.Context(), id)
		return printReceipt(cmd.OutOrStdout(), r, err)
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show TASK_ID",
	Short: "Show a task and its bids",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		c := newClient()
		t, err := c.Task(cmd.Context(), id)
		if err != nil {
			return err
		}
		bids, err := c.Bids(cmd.Context(), id)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput() {
			return printJSON(out, map[string]any{"task": t, "bids": bids})
		}

		fmt.Fprintf(out, "ID:          %d\n", t.ID)
		fmt.Fprintf(out, "Title:       %s\n", t.Title)
		fmt.Fprintf(out, "Status:      %s\n", t.Status)
		fmt.Fprintf(out, "Poster:      %s\n", t.Poster)
		fmt.Fprintf(out, "Reward:      %s\n", amountStr(t.Reward))
		if t.AssignedTo != nil {
			fmt.Fprintf(out, "Assigned to: %s\n", *t.AssignedTo)
		}
		if len(t.Description) > 0 {
			fmt.Fprintf(out, "Description: %s\n", t.Description)
		}
		if len(t.Submission) > 0 {
			fmt.Fprintf(out, "Submission:  %s\n", t.Submission)
		}
		if len(t.DisputeReason) > 0 {
			fmt.Fprintf(out, "Dispute:     %s\n", t.DisputeReason)
		}
		if len(bids) == 0 {
			return nil
		}
		fmt.Fprintln(out)
		tw := table.NewWriter()
		tw.SetOutputMirror(out)
		tw.AppendHeader(table.Row{"Bidder", "Amount", "Proposal"})
		for _, b := range bids {
			tw.AppendRow(table.Row{b.Bidder, amountStr(b.Amount), string(b.Proposal)})
		}
		tw.Render()
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := newClient().ListTasks(cmd.Context(), client.TaskFilter{
			Status:     domain.TaskStatus(listStatus),
			Poster:     domain.AccountID(listPoster),
			AssignedTo: domain.AccountID(listAssignee),
			Limit:      listLimit,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput() {
			return printJSON(out, tasks)
		}
		if len(tasks) == 0 {
			fmt.Fprintln(out, "No tasks.")
			return nil
		}
		tw := table.NewWriter()
		tw.SetOutputMirror(out)
		tw.AppendHeader(table.Row{"ID", "Title", "Status", "Poster", "Reward", "Assignee"})
		for _, t := range tasks {
			assignee := ""
			if t.AssignedTo != nil {
				assignee = string(*t.AssignedTo)
			}
			tw.AppendRow(table.Row{t.ID, string(t.Title), t.Status, t.Poster, amountStr(t.Reward), assignee})
		}
		tw.Render()
		return nil
	},
}

func parseTaskID(s string) (domain.TaskID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return domain.TaskID(n), nil
}

// printReceipt reports a dispatched call, passing through its error.
func printReceipt(w io.Writer, r node.Receipt, err error) error {
	if err != nil {
		return err
	}
	if jsonOutput() {
		return printJSON(w, r)
	}
	fmt.Fprintf(w, "ok: %s (seq %d)\n", r.Method, r.Seq)
	if r.TaskID != nil {
		fmt.Fprintf(w, "task id: %d\n", *r.TaskID)
	}
	for _, e := range r.Events {
		fmt.Fprintf(w, "  event %s\n", e.Kind)
	}
	return nil
}
