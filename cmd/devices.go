package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/metal-toolbox/printwatch/internal/store"
	"github.com/spf13/cobra"
)

var cmdDevices = &cobra.Command{
	Use:   "devices",
	Short: "Inspect the device catalog [list|import]",
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

type devicesFlags struct {
	catalog string
}

var (
	devicesFlagSet = &devicesFlags{}
)

var cmdDevicesList = &cobra.Command{
	Use:   "list",
	Short: "List the active devices polled by a run",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		pw := newApp()

		st, err := initStores(ctx, pw, devicesFlagSet.catalog)
		if err != nil {
			pw.Logger.Fatal(err)
		}
		defer st.close()

		if st.catalog == nil {
			pw.Logger.Fatal(ErrNoCatalog)
		}

		devices, err := st.catalog.ListActiveDevices(ctx)
		if err != nil {
			pw.Logger.Fatal(err)
		}

		models, err := pw.Config.ConsumableMap()
		if err != nil {
			pw.Logger.Fatal(err)
		}

		tw := newTable(os.Stdout)
		fmt.Fprintln(tw, "ADDRESS\tSITE\tNAME\tMODEL\tSERIAL\tSUPPORTED")

		for _, d := range devices {
			_, supported := models.Lookup(d.Model)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n", d.Address, d.Site, d.Name, d.Model, d.Serial, supported)
		}

		_ = tw.Flush()
	},
}

var cmdDevicesImport = &cobra.Command{
	Use:   "import --catalog FILE",
	Short: "Import a YAML device catalog into the postgres store",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		pw := newApp()

		if pw.Config.Store.Kind != model.StoreKindPostgres {
			pw.Logger.Fatal("devices import requires store.kind postgres")
		}

		catalog, err := store.NewYamlCatalog(devicesFlagSet.catalog)
		if err != nil {
			pw.Logger.Fatal(err)
		}

		devices, err := catalog.Devices()
		if err != nil {
			pw.Logger.Fatal(err)
		}

		pg, err := store.NewPostgres(ctx, pw.Config.Store.Postgres.DSN, pw.Logger)
		if err != nil {
			pw.Logger.Fatal(err)
		}
		defer pg.Close()

		if err := pg.ImportDevices(ctx, devices); err != nil {
			pw.Logger.Fatal(err)
		}

		fmt.Printf("imported %d devices, %d active\n", len(devices), len(store.ActiveDevices(devices)))
	},
}

func init() {
	cmdDevicesList.Flags().StringVar(&devicesFlagSet.catalog, "catalog", "", "device catalog YAML file, overrides catalog.file")
	cmdDevicesImport.Flags().StringVar(&devicesFlagSet.catalog, "catalog", "", "device catalog YAML file to import")

	if err := cmdDevicesImport.MarkFlagRequired("catalog"); err != nil {
		log.Fatal(err)
	}

	cmdDevices.AddCommand(cmdDevicesList, cmdDevicesImport)
	rootCmd.AddCommand(cmdDevices)
}
