package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/shelf-crawler/internal/model"
	"github.com/sells-group/shelf-crawler/internal/store"
)

var exportHeader = []string{"Retailer", "Category", "Product", "Product URL", "Price", "Observed At"}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export current prices to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		retailer, _ := cmd.Flags().GetString("retailer")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		prices, err := st.ListCurrentPrices(ctx, store.PriceFilter{Retailer: retailer, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if err := writePricesXLSX(out, prices); err != nil {
			return err
		}

		zap.L().Info("exported current prices", zap.String("path", out), zap.Int("products", len(prices)))
		return nil
	},
}

// writePricesXLSX saves prices as a single-sheet workbook at path.
func writePricesXLSX(path string, prices []model.CurrentPrice) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("prices")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range exportHeader {
		header.AddCell().SetString(h)
	}
	for _, p := range prices {
		row := sheet.AddRow()
		row.AddCell().SetString(p.Retailer)
		row.AddCell().SetString(p.Category)
		row.AddCell().SetString(p.ProductName)
		row.AddCell().SetString(p.ProductURL)
		row.AddCell().SetFloat(p.Price)
		row.AddCell().SetString(p.ObservedAt.UTC().Format("2006-01-02 15:04:05"))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func init() {
	exportCmd.Flags().String("out", "prices.xlsx", "output workbook path")
	exportCmd.Flags().String("retailer", "", "only export products of this retailer")
	exportCmd.Flags().Int("limit", 10000, "max number of products to export")
	rootCmd.AddCommand(exportCmd)
}
