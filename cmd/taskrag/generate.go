package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taskrag/internal/types"
)

var (
	genName        string
	genDescription string
	genEventType   string
	genOutdoor     bool
	genSponsor     bool
	genVIP         bool
	genJSON        bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run the full pipeline once and print the task list",
	Long: `Runs retrieval plus LLM generation for a single event described by
flags, without starting the server. Use --json for machine-readable output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		event := types.EventInput{
			Name:           genName,
			Description:    genDescription,
			EventTypeGuess: genEventType,
		}
		if cmd.Flags().Changed("outdoor") {
			event.Outdoor = &genOutdoor
		}
		if cmd.Flags().Changed("sponsor") {
			event.HasSponsor = &genSponsor
		}
		if cmd.Flags().Changed("vip") {
			event.HasVIP = &genVIP
		}
		event.Normalize()
		if err := event.Validate(); err != nil {
			return err
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.withPipeline(); err != nil {
			return err
		}

		result, err := a.pipeline.Run(cmd.Context(), event)
		if err != nil {
			return err
		}

		if genJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		renderResult(result)
		return nil
	},
}

func renderResult(result *types.PipelineResult) {
	if len(result.RetrievedDocs) > 0 {
		fmt.Println(mutedStyle.Render("template: " + result.RetrievedDocs[0]))
	} else {
		fmt.Println(mutedStyle.Render("template: (none)"))
	}
	fmt.Println()

	for i, task := range result.Tasks {
		title := fmt.Sprintf("%d. %s", i+1, task.Title)
		if task.Title == types.SentinelErrorTitle {
			fmt.Println(errorStyle.Render(title))
			fmt.Println(mutedStyle.Render("   " + task.Description))
			continue
		}

		fmt.Println(headerStyle.Render(title))
		if task.Description != "" {
			fmt.Println("   " + task.Description)
		}
		detail := fmt.Sprintf("   %s · %d %s · %s", orDash(task.DepartmentID), task.Estimate, task.EstimateUnit, task.Status)
		fmt.Println(mutedStyle.Render(detail))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	generateCmd.Flags().StringVar(&genName, "name", "", "event name")
	generateCmd.Flags().StringVar(&genDescription, "description", "", "event description")
	generateCmd.Flags().StringVar(&genEventType, "type", "", "event type guess")
	generateCmd.Flags().BoolVar(&genOutdoor, "outdoor", false, "event is outdoors")
	generateCmd.Flags().BoolVar(&genSponsor, "sponsor", false, "event has sponsors")
	generateCmd.Flags().BoolVar(&genVIP, "vip", false, "event has VIP guests")
	generateCmd.Flags().BoolVar(&genJSON, "json", false, "print the raw PipelineResult JSON")
}
