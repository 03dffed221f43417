package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/metal-toolbox/printwatch/internal/depletion"
	"github.com/metal-toolbox/printwatch/internal/level"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/metal-toolbox/printwatch/internal/store"
	"github.com/spf13/cobra"
)

type historyFlags struct {
	latest  bool
	address string
	from    string
	to      string
	today   string
}

var (
	historyFlagSet = &historyFlags{}
)

var cmdHistory = &cobra.Command{
	Use:   "history --latest | --address ADDRESS [--from DATE] [--to DATE]",
	Short: "Show stored readings, the latest batch or the history of one printer",
	Run: func(cmd *cobra.Command, _ []string) {
		if historyFlagSet.latest == (historyFlagSet.address != "") {
			log.Fatal("expected --latest OR --address flag")
		}

		ctx := cmd.Context()
		pw := newApp()

		st, err := initStores(ctx, pw, "")
		if err != nil {
			pw.Logger.Fatal(err)
		}
		defer st.close()

		if historyFlagSet.latest {
			readings, ts, err := st.readings.LatestBatch(ctx)
			if err != nil {
				if errors.Is(err, store.ErrNoReadings) {
					fmt.Println("no readings stored")
					return
				}

				pw.Logger.Fatal(err)
			}

			fmt.Printf("batch %s, %d devices\n\n", ts.Local().Format(time.DateTime), len(readings))
			printReadings(readings, &pw.Config.Thresholds)

			return
		}

		r, err := timeRange(historyFlagSet.from, historyFlagSet.to)
		if err != nil {
			pw.Logger.Fatal(err)
		}

		readings, err := st.readings.History(ctx, historyFlagSet.address, r)
		if err != nil {
			pw.Logger.Fatal(err)
		}

		printReadings(readings, nil)
	},
}

// printReadings lists readings, with thresholds set each reading is classified.
func printReadings(readings []model.SupplyReading, thresholds *model.Thresholds) {
	tw := newTable(os.Stdout)

	header := "TIME\tADDRESS\tTONER\tKIT\tIMAGING"
	if thresholds != nil {
		header += "\tLEVEL"
	}

	fmt.Fprintln(tw, header)

	for _, r := range readings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s",
			r.Timestamp.Local().Format(time.DateTime), r.Address, pct(r.Toner), pct(r.Kit), pct(r.Imaging))

		if thresholds != nil {
			fmt.Fprintf(tw, "\t%s", level.ClassifyFractions(r.Fractions, *thresholds))
		}

		fmt.Fprintln(tw)
	}

	_ = tw.Flush()
}

var cmdPredict = &cobra.Command{
	Use:   "predict --address ADDRESS",
	Short: "Project the exhaustion date of each consumable of a printer from its history",
	Run: func(cmd *cobra.Command, _ []string) {
		today := time.Now()

		if historyFlagSet.today != "" {
			t, err := parseDay(historyFlagSet.today, false)
			if err != nil {
				log.Fatal(err)
			}

			today = *t
		}

		ctx := cmd.Context()
		pw := newApp()

		st, err := initStores(ctx, pw, "")
		if err != nil {
			pw.Logger.Fatal(err)
		}
		defer st.close()

		readings, err := st.readings.History(ctx, historyFlagSet.address, store.TimeRange{})
		if err != nil {
			pw.Logger.Fatal(err)
		}

		tw := newTable(os.Stdout)
		fmt.Fprintln(tw, "CONSUMABLE\tEXHAUSTION")

		for _, c := range model.Consumables() {
			exhaustion, ok := depletion.Predict(depletion.Series(readings, c), today)
			if !ok {
				fmt.Fprintf(tw, "%s\t-\n", c)
				continue
			}

			fmt.Fprintf(tw, "%s\t%s\n", c, exhaustion.Local().Format(dayLayout))
		}

		_ = tw.Flush()
	},
}

func init() {
	cmdHistory.Flags().BoolVar(&historyFlagSet.latest, "latest", false, "show the latest batch with the level of each printer")
	cmdHistory.Flags().StringVar(&historyFlagSet.address, "address", "", "show the readings of the printer at this address")
	cmdHistory.Flags().StringVar(&historyFlagSet.from, "from", "", "from date, YYYY-MM-DD")
	cmdHistory.Flags().StringVar(&historyFlagSet.to, "to", "", "to date inclusive, YYYY-MM-DD")

	cmdPredict.Flags().StringVar(&historyFlagSet.address, "address", "", "printer address")
	cmdPredict.Flags().StringVar(&historyFlagSet.today, "today", "", "reference date, YYYY-MM-DD, defaults to the current date")

	if err := cmdPredict.MarkFlagRequired("address"); err != nil {
		log.Fatal(err)
	}

	rootCmd.AddCommand(cmdHistory, cmdPredict)
}
