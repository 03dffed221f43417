package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/metal-toolbox/printwatch/internal/app"
	"github.com/metal-toolbox/printwatch/internal/ledger"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/metal-toolbox/printwatch/internal/store"
	"github.com/spf13/cobra"
)

var cmdStock = &cobra.Command{
	Use:   "stock",
	Short: "Manage the supply depot stock [list|add|adjust|set-minimum|ship|movements|shipments|consumption]",
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

type stockFlags struct {
	supplyType string
	// filterType is kept apart from supplyType, which defaults to toner.
	filterType string
	model      string
	quantity   int
	minimum    int
	note       string
	site       string
	address    string
	from       string
	to         string
	year       int
	month      int
}

var (
	stockFlagSet = &stockFlags{}
)

// openLedger returns the stock ledger on the configured store and a func to release it.
func openLedger(ctx context.Context) (*app.App, *ledger.StockLedger, func()) {
	pw := newApp()

	st, err := initStores(ctx, pw, "")
	if err != nil {
		pw.Logger.Fatal(err)
	}

	return pw, ledger.New(st.ledger, pw.Logger), st.close
}

func printItems(items []model.StockItem) {
	tw := newTable(os.Stdout)
	fmt.Fprintln(tw, "TYPE\tMODEL\tQUANTITY\tMINIMUM\tSTATE")

	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", item.SupplyType, item.Model, item.Quantity, item.Minimum, item.State())
	}

	_ = tw.Flush()
}

var cmdStockList = &cobra.Command{
	Use:   "list",
	Short: "List stock items with their alert state",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()

		pw, l, closeStore := openLedger(ctx)
		defer closeStore()

		summary, err := l.Items(ctx)
		if err != nil {
			pw.Logger.Fatal(err)
		}

		printItems(summary.Items)
		fmt.Printf("\n%d items, %d critical, %d low\n", len(summary.Items), summary.Critical, summary.Low)
	},
}

var cmdStockAdd = &cobra.Command{
	Use:   "add --type toner --model MODEL --quantity N",
	Short: "Record received supply units, the item is created when missing",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()

		pw, l, closeStore := openLedger(ctx)
		defer closeStore()

		item, err := l.AddEntry(ctx, model.SupplyType(stockFlagSet.supplyType), stockFlagSet.model, stockFlagSet.quantity, stockFlagSet.note)
		if err != nil {
			pw.Logger.Fatal(err)
		}

		printItems([]model.StockItem{item})
	},
}

var cmdStockAdjust = &cobra.Command{
	Use:   "adjust --type toner --model MODEL --quantity N --minimum M",
	Short: "Set the counted quantity and minimum of a stock item",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()

		pw, l, closeStore := openLedger(ctx)
		defer closeStore()

		item, err := l.Adjust(ctx, model.SupplyType(stockFlagSet.supplyType), stockFlagSet.model, stockFlagSet.quantity, stockFlagSet.minimum)
		if err != nil {
			pw.Logger.Fatal(err)
		}

		printItems([]model.StockItem{item})
	},
}

var cmdStockSetMinimum = &cobra.Command{
	Use:   "set-minimum --type toner --model MODEL --minimum M",
	Short: "Set the minimum alert threshold of a stock item",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()

		pw, l, closeStore := openLedger(ctx)
		defer closeStore()

		item, err := l.SetMinimum(ctx, model.SupplyType(stockFlagSet.supplyType), stockFlagSet.model, stockFlagSet.minimum)
		if err != nil {
			pw.Logger.Fatal(err)
		}

		printItems([]model.StockItem{item})
	},
}

var cmdStockShip = &cobra.Command{
	Use:   "ship --site SITE --type toner --model MODEL --quantity N",
	Short: "Register a shipment of supply units to a site",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()

		pw, l, closeStore := openLedger(ctx)
		defer closeStore()

		record, err := l.RegisterShipment(ctx, ledger.Shipment{
			Site:          stockFlagSet.site,
			DeviceAddress: stockFlagSet.address,
			SupplyType:    model.SupplyType(stockFlagSet.supplyType),
			Model:         stockFlagSet.model,
			Quantity:      stockFlagSet.quantity,
		})
		if err != nil {
			pw.Logger.Fatal(err)
		}

		fmt.Printf("shipment %s: %d x %s %s to %s\n", record.ID, record.Quantity, record.SupplyType, record.Model, record.Site)
	},
}

var cmdStockMovements = &cobra.Command{
	Use:   "movements",
	Short: "List stock movements, newest first",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()

		r, err := timeRange(stockFlagSet.from, stockFlagSet.to)
		if err != nil {
			log.Fatal(err)
		}

		pw, l, closeStore := openLedger(ctx)
		defer closeStore()

		movements, err := l.Movements(ctx, store.MovementFilter{
			SupplyType:    model.SupplyType(stockFlagSet.filterType),
			ModelContains: stockFlagSet.model,
			TimeRange:     r,
		})
		if err != nil {
			pw.Logger.Fatal(err)
		}

		tw := newTable(os.Stdout)
		fmt.Fprintln(tw, "TIME\tKIND\tTYPE\tMODEL\tDELTA\tNOTE")

		for _, m := range movements {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%+d\t%s\n",
				m.Timestamp.Local().Format(time.DateTime), m.Kind, m.SupplyType, m.Model, m.Delta, m.Note)
		}

		_ = tw.Flush()
	},
}

func shipmentFilter() store.ShipmentFilter {
	r, err := timeRange(stockFlagSet.from, stockFlagSet.to)
	if err != nil {
		log.Fatal(err)
	}

	if stockFlagSet.month < 0 || stockFlagSet.month > 12 {
		log.Fatalf("--month: expected 1-12, got %d", stockFlagSet.month)
	}

	return store.ShipmentFilter{
		SupplyType:   model.SupplyType(stockFlagSet.filterType),
		SiteContains: stockFlagSet.site,
		Year:         stockFlagSet.year,
		Month:        time.Month(stockFlagSet.month),
		TimeRange:    r,
	}
}

var cmdStockShipments = &cobra.Command{
	Use:   "shipments",
	Short: "List shipments, newest first",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		filter := shipmentFilter()

		pw, l, closeStore := openLedger(ctx)
		defer closeStore()

		shipments, err := l.Shipments(ctx, filter)
		if err != nil {
			pw.Logger.Fatal(err)
		}

		tw := newTable(os.Stdout)
		fmt.Fprintln(tw, "TIME\tSITE\tDEVICE\tTYPE\tMODEL\tQUANTITY")

		for _, s := range shipments {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
				s.Timestamp.Local().Format(time.DateTime), s.Site, s.DeviceAddress, s.SupplyType, s.Model, s.Quantity)
		}

		_ = tw.Flush()
	},
}

var cmdStockConsumption = &cobra.Command{
	Use:   "consumption",
	Short: "Total the shipped quantity per site and supply type",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		filter := shipmentFilter()

		pw, l, closeStore := openLedger(ctx)
		defer closeStore()

		consumption, err := l.Consumption(ctx, filter)
		if err != nil {
			pw.Logger.Fatal(err)
		}

		tw := newTable(os.Stdout)
		fmt.Fprintln(tw, "SITE\tTYPE\tQUANTITY")

		for _, c := range consumption {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Site, c.SupplyType, c.Quantity)
		}

		_ = tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(cmdStock)

	for _, c := range []*cobra.Command{cmdStockAdd, cmdStockAdjust, cmdStockSetMinimum, cmdStockShip} {
		c.Flags().StringVar(&stockFlagSet.supplyType, "type", string(model.SupplyToner), "supply type - toner, imaging_unit or maintenance_kit")
		c.Flags().StringVar(&stockFlagSet.model, "model", "", "printer model the supply is for")

		if err := c.MarkFlagRequired("model"); err != nil {
			log.Fatal(err)
		}
	}

	for _, c := range []*cobra.Command{cmdStockAdd, cmdStockAdjust, cmdStockShip} {
		c.Flags().IntVar(&stockFlagSet.quantity, "quantity", 0, "number of units")

		if err := c.MarkFlagRequired("quantity"); err != nil {
			log.Fatal(err)
		}
	}

	for _, c := range []*cobra.Command{cmdStockAdjust, cmdStockSetMinimum} {
		c.Flags().IntVar(&stockFlagSet.minimum, "minimum", model.DefaultStockMinimum, "minimum alert threshold")
	}

	cmdStockAdd.Flags().StringVar(&stockFlagSet.note, "note", "", "note recorded with the entry movement")

	cmdStockShip.Flags().StringVar(&stockFlagSet.site, "site", "", "destination site")
	cmdStockShip.Flags().StringVar(&stockFlagSet.address, "address", "", "destination printer address")

	if err := cmdStockShip.MarkFlagRequired("site"); err != nil {
		log.Fatal(err)
	}

	cmdStockMovements.Flags().StringVar(&stockFlagSet.filterType, "type", "", "filter by supply type")
	cmdStockMovements.Flags().StringVar(&stockFlagSet.model, "model", "", "filter by model name substring")

	for _, c := range []*cobra.Command{cmdStockShipments, cmdStockConsumption} {
		c.Flags().StringVar(&stockFlagSet.filterType, "type", "", "filter by supply type")
		c.Flags().StringVar(&stockFlagSet.site, "site", "", "filter by site substring")
		c.Flags().IntVar(&stockFlagSet.year, "year", 0, "filter by year")
		c.Flags().IntVar(&stockFlagSet.month, "month", 0, "filter by month, 1-12")
	}

	for _, c := range []*cobra.Command{cmdStockMovements, cmdStockShipments, cmdStockConsumption} {
		c.Flags().StringVar(&stockFlagSet.from, "from", "", "from date, YYYY-MM-DD")
		c.Flags().StringVar(&stockFlagSet.to, "to", "", "to date inclusive, YYYY-MM-DD")
	}

	cmdStock.AddCommand(
		cmdStockList,
		cmdStockAdd,
		cmdStockAdjust,
		cmdStockSetMinimum,
		cmdStockShip,
		cmdStockMovements,
		cmdStockShipments,
		cmdStockConsumption,
	)
}
