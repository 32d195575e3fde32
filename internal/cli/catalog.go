package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// NewTriggerCmd создаёт команду просмотра типов триггеров.
func NewTriggerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "List trigger types",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known trigger types",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			triggers, err := client.ListTriggers()
			if err != nil {
				return err
			}

			headers := []string{"TYPE", "ENTITY", "DESCRIPTION"}
			rows := make([][]string, len(triggers))
			for i, t := range triggers {
				rows[i] = []string{t.Type, t.EntityType, t.Description}
			}

			out.Print(headers, rows, triggers)
			return nil
		},
	})

	return cmd
}

// NewActionCmd создаёт команду просмотра подтипов шагов.
func NewActionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "action",
		Short: "List step subtypes and condition operators",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered step subtypes",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			res, err := client.ListActions()
			if err != nil {
				return err
			}

			out.Detail([][2]string{
				{"Subtypes", strings.Join(res.Subtypes, ", ")},
				{"Operators", strings.Join(res.Operators, ", ")},
			}, res)
			return nil
		},
	})

	return cmd
}
