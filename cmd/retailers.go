package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/shelf-crawler/internal/rules"
)

var retailersCmd = &cobra.Command{
	Use:   "retailers",
	Short: "List registered retailer rule sets",
	RunE: func(_ *cobra.Command, _ []string) error {
		reg, err := initRegistry(cfg)
		if err != nil {
			return err
		}
		formatRetailers(os.Stdout, reg.All())
		return nil
	},
}

// formatRetailers writes one line per rule set to out.
func formatRetailers(out io.Writer, sets []*rules.RuleSet) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCATEGORY\tSEED URL\tFIELDS")
	_, _ = fmt.Fprintln(w, "----\t--------\t--------\t------")
	for _, rs := range sets {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			rs.Name(),
			rs.Strategy(),
			rs.SeedURL(),
			strings.Join(rs.Fields(), ","),
		)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(retailersCmd)
}
