// Processa CLI — инструмент командной строки для шаблонов и процессов.
//
// Использование:
//
//	processa [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	template  Шаблоны процессов (через API manager)
//	workflow  Запуск и просмотр процессов (через API manager)
//	graph     Разбор BPMN-файла локально
//	topology  Очереди RabbitMQ по текущей конфигурации
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Processa/internal/cli"
	"github.com/shaiso/Processa/internal/config"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "processa",
		Short:         "Processa CLI — BPMN workflow orchestration",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "Manager API URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTemplateCmd(clientFn, outputFn),
		cli.NewWorkflowCmd(clientFn, outputFn),
		cli.NewGraphCmd(outputFn),
		cli.NewTopologyCmd(config.Load, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
