package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskrag/internal/types"
)

var (
	queryEventType string
	queryOutdoor   bool
	querySponsor   bool
	queryVIP       bool
)

var queryCmd = &cobra.Command{
	Use:   "query [event description]",
	Short: "Retrieve the best matching template without calling the LLM",
	Long: `Runs only the retrieval half of the pipeline: embeds the given
description, applies the metadata filter derived from the flags, and prints
the single best matching template document.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		event := types.EventInput{Description: strings.Join(args, " ")}
		if queryEventType != "" {
			event.EventTypeGuess = queryEventType
		}
		if cmd.Flags().Changed("outdoor") {
			event.Outdoor = &queryOutdoor
		}
		if cmd.Flags().Changed("sponsor") {
			event.HasSponsor = &querySponsor
		}
		if cmd.Flags().Changed("vip") {
			event.HasVIP = &queryVIP
		}

		doc, err := a.retriever.Retrieve(cmd.Context(), event)
		if err != nil {
			return err
		}
		if doc == nil {
			fmt.Println(mutedStyle.Render("No matching template found."))
			return nil
		}

		fmt.Println(titleStyle.Render(doc.DocID))
		fmt.Println(mutedStyle.Render(fmt.Sprintf("similarity %.3f  distance %.3f", doc.Similarity, doc.Distance)))
		fmt.Println(cardStyle.Render(doc.Text))
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryEventType, "type", "", "event type guess")
	queryCmd.Flags().BoolVar(&queryOutdoor, "outdoor", false, "event is outdoors")
	queryCmd.Flags().BoolVar(&querySponsor, "sponsor", false, "event has sponsors")
	queryCmd.Flags().BoolVar(&queryVIP, "vip", false, "event has VIP guests")
}
