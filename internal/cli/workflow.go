package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для управления workflows.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Short:   "Manage workflows",
	}

	cmd.AddCommand(
		newWorkflowListCmd(clientFn, outputFn),
		newWorkflowCreateCmd(clientFn, outputFn),
		newWorkflowShowCmd(clientFn, outputFn),
		newWorkflowUpdateCmd(clientFn, outputFn),
		newWorkflowDeleteCmd(clientFn, outputFn),
		newWorkflowStatusCmd(clientFn, outputFn, "activate", "active"),
		newWorkflowStatusCmd(clientFn, outputFn, "deactivate", "inactive"),
		newWorkflowReprocessCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkflowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflows, err := client.ListWorkflows(opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "TRIGGER", "STATUS", "EXECUTIONS", "SUCCESS"}
			rows := make([][]string, len(workflows))
			for i, w := range workflows {
				rows[i] = []string{
					w.ID, w.Name, w.TriggerType, w.Status,
					strconv.Itoa(w.ExecutionCount), strconv.Itoa(w.SuccessCount),
				}
			}

			out.Print(headers, rows, workflows)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.OrganizationID, "org", "", "Filter by organization ID")
	cmd.Flags().StringVar(&opts.TriggerType, "trigger", "", "Filter by trigger type")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (active, inactive)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newWorkflowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workflow from a JSON definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			definition, err := readDefinition(cmd, file)
			if err != nil {
				return err
			}

			wf, err := client.CreateWorkflow(definition)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow created: %s (%s)", wf.ID, wf.Status))
			printWorkflow(out, wf)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to workflow JSON (- for stdin)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newWorkflowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show workflow details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wf, err := client.GetWorkflow(args[0])
			if err != nil {
				return err
			}

			printWorkflow(out, wf)
			return nil
		},
	}
}

func newWorkflowUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Replace a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			definition, err := readDefinition(cmd, file)
			if err != nil {
				return err
			}

			wf, err := client.UpdateWorkflow(args[0], definition)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow updated: %s", wf.ID))
			printWorkflow(out, wf)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to workflow JSON (- for stdin)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newWorkflowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteWorkflow(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow deleted: %s", args[0]))
			return nil
		},
	}
}

func newWorkflowStatusCmd(clientFn func() *Client, outputFn func() *Output, use, status string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: fmt.Sprintf("Set workflow status to %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wf, err := client.SetWorkflowStatus(args[0], status)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow %s: %s", wf.Status, wf.ID))
			return nil
		},
	}
}

func newWorkflowReprocessCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess ID",
		Short: "Requeue failed messages of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			n, err := client.ReprocessWorkflowMessages(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Requeued %d message(s)", n))
			return nil
		},
	}
}

func printWorkflow(out *Output, wf *WorkflowResponse) {
	out.Detail([][2]string{
		{"ID", wf.ID},
		{"Organization", wf.OrganizationID},
		{"Name", wf.Name},
		{"Trigger", wf.TriggerType},
		{"Status", wf.Status},
		{"Steps", strconv.Itoa(len(wf.Steps))},
		{"Executions", strconv.Itoa(wf.ExecutionCount)},
		{"Succeeded", strconv.Itoa(wf.SuccessCount)},
		{"Updated", wf.UpdatedAt},
	}, wf)
}

// readDefinition читает JSON-определение из файла или stdin ("-").
func readDefinition(cmd *cobra.Command, path string) (json.RawMessage, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("definition %s is not valid JSON", path)
	}
	return data, nil
}
