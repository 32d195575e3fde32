package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для просмотра execution logs.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "execution",
		Aliases: []string{"exec"},
		Short:   "Inspect workflow executions",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			logs, err := client.ListExecutions(opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "WORKFLOW_ID", "STATUS", "STEPS", "RESUME_AT", "CREATED"}
			rows := make([][]string, len(logs))
			for i, e := range logs {
				rows[i] = []string{
					e.ID, e.WorkflowID, e.Status,
					strconv.Itoa(len(e.ActionsExecuted)), e.ResumeAt, e.CreatedAt,
				}
			}

			out.Print(headers, rows, logs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.WorkflowID, "workflow-id", "", "Filter by workflow ID")
	cmd.Flags().StringVar(&opts.OrganizationID, "org", "", "Filter by organization ID")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (pending, processing, completed, failed)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution with executed steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			exec, err := client.GetExecution(args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(exec)
				return nil
			}

			out.Detail([][2]string{
				{"ID", exec.ID},
				{"Workflow", exec.WorkflowID},
				{"Status", exec.Status},
				{"Error", exec.ErrorMessage},
				{"Resume at", exec.ResumeAt},
				{"Started", exec.StartedAt},
				{"Completed", exec.CompletedAt},
			}, exec)

			headers := []string{"STEP_ID", "KIND", "SUBTYPE", "STATUS", "ERROR", "EXECUTED"}
			rows := make([][]string, len(exec.ActionsExecuted))
			for i, a := range exec.ActionsExecuted {
				rows[i] = []string{a.StepID, a.Kind, a.Subtype, a.Status, a.Error, a.ExecutedAt}
			}
			out.Table(headers, rows)
			return nil
		},
	}
}
