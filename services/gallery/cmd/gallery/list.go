package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"jstagram/services/gallery/internal/app"
)

var (
	listTitle string
	listOrder string
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Print one page of pictures as JSON",
	Long: `Print up to ten pictures from the configured catalog.

Examples:
  gallery list
  gallery list --order asc
  gallery list --title fish --order rnd`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listTitle, "title", "", "only titles containing this substring (case-sensitive)")
	listCmd.Flags().StringVar(&listOrder, "order", "new", "asc|a2z, desc|z2a, random|rnd, old, new")
}

func runList(cmd *cobra.Command, _ []string) error {
	appCore, err := app.New(appConfig(cfg))
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer appCore.Close()

	pictures, err := appCore.ListPictures(cmd.Context(), listTitle, listOrder)
	if err != nil {
		return fmt.Errorf("list pictures: %w", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(pictures)
}
