package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewEventCmd создаёт команду отправки событий.
func NewEventCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Send entity change events",
	}

	cmd.AddCommand(newEventSendCmd(clientFn, outputFn))

	return cmd
}

func newEventSendCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req EventRequest
	var fields []string
	var snapshotFile string

	cmd := &cobra.Command{
		Use:   "send EVENT_TYPE",
		Short: "Send an event (e.g. job_completed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req.EventType = args[0]
			req.Snapshot = make(map[string]any)

			if snapshotFile != "" {
				data, err := readDefinition(cmd, snapshotFile)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &req.Snapshot); err != nil {
					return fmt.Errorf("snapshot must be a JSON object: %w", err)
				}
			}

			for _, kv := range fields {
				parts := strings.SplitN(kv, "=", 2)
				if len(parts) != 2 {
					return fmt.Errorf("invalid field format %q, expected PATH=VALUE", kv)
				}
				setPath(req.Snapshot, parts[0], parseScalar(parts[1]))
			}

			res, err := client.SendEvent(req)
			if err != nil {
				return err
			}

			if res.Queued {
				out.Success(fmt.Sprintf("Event queued: %s", res.EventType))
				return nil
			}

			out.Success(fmt.Sprintf("Event dispatched: %d of %d workflow(s) matched", res.Matched, res.Candidates))
			rows := make([][]string, len(res.ExecutionIDs))
			for i, id := range res.ExecutionIDs {
				rows[i] = []string{id}
			}
			out.Print([]string{"EXECUTION_ID"}, rows, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.OrganizationID, "org", "", "Organization ID")
	cmd.Flags().StringVar(&req.ID, "id", "", "Event ID for deduplication")
	cmd.Flags().StringVar(&req.EntityType, "entity", "", "Entity type (job, client, estimate, invoice)")
	cmd.Flags().StringVar(&snapshotFile, "snapshot", "", "Path to snapshot JSON (- for stdin)")
	cmd.Flags().StringSliceVar(&fields, "set", nil, "Snapshot field as PATH=VALUE, dotted paths allowed (repeatable)")
	cmd.MarkFlagRequired("org")

	return cmd
}

// setPath записывает значение по пути через точку, создавая вложенные map.
func setPath(data map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	node := data
	for _, seg := range segments[:len(segments)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[seg] = next
		}
		node = next
	}
	node[segments[len(segments)-1]] = value
}

// parseScalar превращает "42", "true" в числа и bool, остальное оставляет строкой.
func parseScalar(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
