package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMessageCmd создаёт группу команд для очереди сообщений.
func NewMessageCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "message",
		Aliases: []string{"msg"},
		Short:   "Inspect and reprocess queued messages",
	}

	cmd.AddCommand(
		newMessageListCmd(clientFn, outputFn),
		newMessageShowCmd(clientFn, outputFn),
		newMessageReprocessCmd(clientFn, outputFn),
	)

	return cmd
}

func newMessageListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			messages, err := client.ListMessages(opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TYPE", "ROLE", "RECIPIENT", "STATUS", "SCHEDULED", "ERROR"}
			rows := make([][]string, len(messages))
			for i, m := range messages {
				rows[i] = []string{
					m.ID, m.MessageType, m.ChannelRole, m.Recipient,
					m.Status, m.ScheduledAt, m.ErrorMessage,
				}
			}

			out.Print(headers, rows, messages)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.WorkflowID, "workflow-id", "", "Filter by workflow ID")
	cmd.Flags().StringVar(&opts.ExecutionID, "execution-id", "", "Filter by execution ID")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (pending, processing, sent, failed)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newMessageShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show message details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			m, err := client.GetMessage(args[0])
			if err != nil {
				return err
			}

			out.Detail([][2]string{
				{"ID", m.ID},
				{"Workflow", m.WorkflowID},
				{"Execution", m.ExecutionID},
				{"Step", m.StepID},
				{"Type", m.MessageType},
				{"Role", m.ChannelRole},
				{"Recipient", m.Recipient},
				{"Subject", m.Subject},
				{"Content", m.Content},
				{"Status", m.Status},
				{"Scheduled", m.ScheduledAt},
				{"Sent", m.SentAt},
				{"Provider ID", m.ProviderMessageID},
				{"Error", m.ErrorMessage},
			}, m)
			return nil
		},
	}
}

func newMessageReprocessCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess ID",
		Short: "Return a failed message to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.ReprocessMessage(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Message requeued: %s", args[0]))
			return nil
		},
	}
}
