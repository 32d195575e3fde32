// Fieldflow CLI — инструмент командной строки для управления
// workflows, очередью сообщений и событиями через HTTP API.
//
// Использование:
//
//	fieldflow [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	workflow   Управление workflows
//	execution  Execution logs
//	message    Очередь сообщений
//	event      Отправка событий
//	trigger    Типы триггеров
//	action     Подтипы шагов и операторы условий
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Fieldflow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	defaultURL := os.Getenv("FIELDFLOW_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	rootCmd := &cobra.Command{
		Use:           "fieldflow",
		Short:         "Fieldflow CLI — field service automation workflows",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewWorkflowCmd(clientFn, outputFn),
		cli.NewExecutionCmd(clientFn, outputFn),
		cli.NewMessageCmd(clientFn, outputFn),
		cli.NewEventCmd(clientFn, outputFn),
		cli.NewTriggerCmd(clientFn, outputFn),
		cli.NewActionCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
