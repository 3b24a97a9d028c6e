package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTemplateCmd создаёт группу команд для управления шаблонами процессов.
func NewTemplateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage workflow templates",
	}

	cmd.AddCommand(
		newTemplateListCmd(clientFn, outputFn),
		newTemplateCreateCmd(clientFn, outputFn),
		newTemplateShowCmd(clientFn, outputFn),
		newTemplateActiveCmd(clientFn, outputFn, "activate", true),
		newTemplateActiveCmd(clientFn, outputFn, "deactivate", false),
		newTemplateReloadCmd(clientFn, outputFn),
	)

	return cmd
}

func templateRow(t *TemplateResponse) []string {
	return []string{t.ID, t.Name, strconv.FormatBool(t.IsActive), t.UpdatedAt}
}

var templateHeaders = []string{"ID", "NAME", "ACTIVE", "UPDATED"}

func newTemplateListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflow templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			templates, err := client.ListTemplates()
			if err != nil {
				return err
			}

			rows := make([][]string, len(templates))
			for i := range templates {
				rows[i] = templateRow(&templates[i])
			}

			out.Print(templateHeaders, rows, templates)
			return nil
		},
	}
}

func newTemplateCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name string
	var file string
	var active bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Upload a BPMN diagram as a new template",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read BPMN file: %w", err)
			}

			tmpl, err := client.CreateTemplate(CreateTemplateRequest{
				Name:     name,
				XML:      string(data),
				IsActive: active,
			})
			if err != nil {
				return err
			}

			out.Notice("Template created: %s", tmpl.ID)
			for _, w := range tmpl.Warnings {
				out.Warn(w)
			}
			out.Print(templateHeaders, [][]string{templateRow(tmpl)}, tmpl)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Template name (required)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to BPMN XML file (required)")
	cmd.Flags().BoolVar(&active, "active", false, "Activate immediately")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newTemplateShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var withXML bool

	cmd := &cobra.Command{
		Use:   "show <template-id>",
		Short: "Show template details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tmpl, err := client.GetTemplate(args[0])
			if err != nil {
				return err
			}

			if !withXML {
				tmpl.XML = ""
			}
			out.Print(templateHeaders, [][]string{templateRow(tmpl)}, tmpl)
			if withXML && tmpl.XML != "" {
				out.Text("\n" + tmpl.XML + "\n")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withXML, "xml", false, "Print BPMN XML")

	return cmd
}

func newTemplateActiveCmd(clientFn func() *Client, outputFn func() *Output, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <template-id>",
		Short: fmt.Sprintf("Mark template as %s (applied on next schema reload)", map[bool]string{true: "active", false: "inactive"}[active]),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tmpl, err := client.SetTemplateActive(args[0], active)
			if err != nil {
				return err
			}

			out.Notice("Template %s: active=%t", tmpl.ID, tmpl.IsActive)
			return nil
		},
	}
}

func newTemplateReloadCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the manager schema cache now",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stats, err := client.ReloadTemplates()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"LOADED", "FAILED", "WARNINGS", "DURATION_MS"},
				[][]string{{
					strconv.Itoa(stats.Loaded),
					strconv.Itoa(stats.Failed),
					strconv.Itoa(stats.Warnings),
					strconv.FormatInt(stats.DurationMs, 10),
				}},
				stats,
			)
			return nil
		},
	}
}
