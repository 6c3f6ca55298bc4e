package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mbergh0930/create3x/internal/catalog"
)

func newCatalogCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "catalog [set] [category]",
		Short: "Print the prompt catalog",
		Long: "Print the prompt catalog. With no arguments every set, category and artist is\n" +
			"listed; a set narrows the output to that set, and a category to one list.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCatalog(file)
			if err != nil {
				return err
			}

			sets := catalog.Sets
			cats := catalog.Categories
			if len(args) > 0 {
				set, err := catalog.ParseSet(args[0])
				if err != nil {
					return err
				}
				sets = []catalog.Set{set}
			}
			if len(args) > 1 {
				cat, err := catalog.ParseCategory(args[1])
				if err != nil {
					return err
				}
				cats = []catalog.Category{cat}
			}

			return printCatalog(cmd.OutOrStdout(), c, sets, cats, len(args) == 0)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "catalog YAML file (defaults to the built-in catalog)")
	return cmd
}

func printCatalog(out io.Writer, c *catalog.Catalog, sets []catalog.Set, cats []catalog.Category, withArtists bool) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, set := range sets {
		for _, cat := range cats {
			fmt.Fprintf(w, "%s/%s\n", set, cat)
			for _, it := range c.Items(set, cat) {
				fmt.Fprintf(w, "  %s\t%s\n", it.Key, it.Name)
			}
		}
	}
	if withArtists {
		fmt.Fprintln(w, "artists")
		for _, a := range c.SortedArtists() {
			fmt.Fprintf(w, "  %s\t%s\t%d colors, %d techniques, %d mediums\n",
				a.ID, a.Name, len(a.Colors), len(a.Techniques), len(a.Mediums))
		}
	}
	return w.Flush()
}
