package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shelf-crawler/internal/model"
	"github.com/sells-group/shelf-crawler/internal/store"
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Show current product prices",
	Long:  "Shows the most recent price of one product (--url) or of every priced product, optionally narrowed to a retailer.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		productURL, _ := cmd.Flags().GetString("url")
		retailer, _ := cmd.Flags().GetString("retailer")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		var prices []model.CurrentPrice
		if productURL != "" {
			cp, err := st.CurrentPrice(ctx, productURL)
			if err != nil {
				return eris.Wrap(err, "prices")
			}
			if cp == nil {
				return eris.Errorf("prices: no price recorded for %s", productURL)
			}
			prices = append(prices, *cp)
		} else {
			prices, err = st.ListCurrentPrices(ctx, store.PriceFilter{Retailer: retailer, Limit: limit})
			if err != nil {
				return eris.Wrap(err, "prices")
			}
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(prices)
		}
		if len(prices) == 0 {
			fmt.Fprintln(os.Stderr, "No prices found.")
			return nil
		}
		formatPrices(os.Stdout, prices)
		return nil
	},
}

// formatPrices writes a tabular list of current prices to out.
func formatPrices(out io.Writer, prices []model.CurrentPrice) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RETAILER\tCATEGORY\tPRODUCT\tPRICE\tOBSERVED")
	_, _ = fmt.Fprintln(w, "--------\t--------\t-------\t-----\t--------")
	for _, p := range prices {
		name := p.ProductName
		if name == "" {
			name = p.ProductURL
		}
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n",
			p.Retailer,
			p.Category,
			name,
			p.Price,
			p.ObservedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func init() {
	pricesCmd.Flags().String("url", "", "show the current price of one product URL")
	pricesCmd.Flags().String("retailer", "", "only list products of this retailer")
	pricesCmd.Flags().Int("limit", 50, "max number of products to display")
	pricesCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(pricesCmd)
}
