package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для запуска и просмотра процессов.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Start and inspect workflow instances",
	}

	cmd.AddCommand(
		newWorkflowStartCmd(clientFn, outputFn),
		newWorkflowShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkflowStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var templateID string
	var userID string
	var payloadJSON string
	var payloadFile string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a workflow from a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			payload, err := readPayload(payloadJSON, payloadFile)
			if err != nil {
				return err
			}

			wf, err := client.StartWorkflow(StartWorkflowRequest{
				WorkflowTemplateID: templateID,
				UserID:             userID,
				Payload:            payload,
			})
			if err != nil {
				return err
			}

			out.Notice("Workflow started: %s", wf.ID)
			if wf.HasUnresolvedErrors {
				out.Warn("workflow has unresolved errors, see: workflow show " + wf.ID)
			}
			out.Print(workflowHeaders, [][]string{workflowRow(wf)}, wf)
			return nil
		},
	}

	cmd.Flags().StringVar(&templateID, "template", "", "Workflow template ID (required)")
	cmd.Flags().StringVar(&userID, "user", "", "Initiating user ID")
	cmd.Flags().StringVar(&payloadJSON, "payload", "", "Payload as JSON object")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "Path to JSON payload file")
	cmd.MarkFlagRequired("template")

	return cmd
}

func newWorkflowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Show workflow instance with its nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wf, err := client.GetWorkflow(args[0])
			if err != nil {
				return err
			}

			if out.asJSON {
				out.JSON(wf)
				return nil
			}

			out.Table(workflowHeaders, [][]string{workflowRow(wf)})

			if len(wf.Nodes) > 0 {
				out.Text("\n")
				rows := make([][]string, len(wf.Nodes))
				for i, n := range wf.Nodes {
					rows[i] = []string{n.TemplateNodeID, n.Kind, n.Status, strings.Join(n.ResultSequences, ","), n.Error}
				}
				out.Table([]string{"NODE", "KIND", "STATUS", "SEQUENCES", "ERROR"}, rows)
			}

			if len(wf.Errors) > 0 {
				out.Text("\n")
				rows := make([][]string, len(wf.Errors))
				for i, e := range wf.Errors {
					rows[i] = []string{e.CreatedAt, e.Error}
				}
				out.Table([]string{"TIME", "ERROR"}, rows)
			}
			return nil
		},
	}
}

var workflowHeaders = []string{"ID", "TEMPLATE", "FINAL", "ERRORS", "HISTORY", "CREATED"}

func workflowRow(wf *WorkflowResponse) []string {
	return []string{
		wf.ID,
		wf.TemplateID,
		strconv.FormatBool(wf.IsFinal),
		strconv.FormatBool(wf.HasUnresolvedErrors),
		strconv.Itoa(len(wf.History)),
		wf.CreatedAt,
	}
}

// readPayload разбирает payload из флага или файла (флаг важнее).
func readPayload(raw, file string) (map[string]any, error) {
	if raw == "" && file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		raw = string(data)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return payload, nil
}
