// Package main предоставляет утилиту обслуживания хранилища рядов
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sensor-chart-service/internal/config"
	"sensor-chart-service/internal/export"
	"sensor-chart-service/internal/station"
	"sensor-chart-service/internal/storage"
	"sensor-chart-service/internal/viewwindow"
)

type options struct {
	storage   string
	redisAddr string
	badgerDir string
	keyPrefix string
	verbose   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "chartctl",
		Short: "Maintain stored sensor series",
		Long: `chartctl inspects and maintains the points persisted by the sensor chart
service: recover series, clear storage, render charts and export workbooks.
Settings not given as flags come from the same environment variables the
service reads.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.storage, "storage", "", "Storage backend: redis, badger, memory")
	rootCmd.PersistentFlags().StringVar(&opts.redisAddr, "redis-addr", "", "Redis address")
	rootCmd.PersistentFlags().StringVar(&opts.badgerDir, "badger-dir", "", "Badger data directory")
	rootCmd.PersistentFlags().StringVar(&opts.keyPrefix, "key-prefix", "", "Prefix for every storage key")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log storage activity")

	rootCmd.AddCommand(
		newRecoverCmd(opts),
		newClearCmd(opts),
		newRenderCmd(opts),
		newExportCmd(opts),
		newWindowsCmd(),
	)
	return rootCmd
}

// openStation загружает настройки, открывает хранилище и восстанавливает ряды.
// Станция равна nil только при фатальной ошибке, ошибка восстановления
// возвращается вместе со станцией.
func openStation(cmd *cobra.Command, opts *options) (*station.Station, func(), error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, nil, err
	}
	storeOpts := cfg.StorageOptions()
	if opts.storage != "" {
		storeOpts.Backend = opts.storage
	}
	if opts.redisAddr != "" {
		storeOpts.RedisAddr = opts.redisAddr
	}
	if opts.badgerDir != "" {
		storeOpts.BadgerDir = opts.badgerDir
	}
	if opts.keyPrefix != "" {
		storeOpts.KeyPrefix = opts.keyPrefix
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(logrus.WarnLevel)
	if opts.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logrus.NewEntry(logger)

	backend, err := storage.Open(storeOpts, log)
	if err != nil {
		return nil, nil, err
	}
	chartCfg, err := cfg.Chart()
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	st, err := station.New(station.Options{
		Series:  cfg.SeriesNames(),
		Chart:   chartCfg,
		Backend: backend,
		Log:     log,
	})
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	closeFn := func() { backend.Close() }
	return st, closeFn, st.Start()
}

func newRecoverCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Load every series from storage and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeFn, recoverErr := openStation(cmd, opts)
			if st == nil {
				return recoverErr
			}
			defer closeFn()

			summaries := st.Summaries()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(summaries); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SERIES\tPOINTS\tMIN\tMAX\tMEAN")
				for _, s := range summaries {
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%.2f\n", s.ID, s.Points, optional(s.YMin), optional(s.YMax), s.Mean)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			if recoverErr != nil {
				return fmt.Errorf("recovery incomplete: %w", recoverErr)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print summaries as JSON")
	return cmd
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func newClearCmd(opts *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear [series...]",
		Short: "Delete the stored points of the given series",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return fmt.Errorf("name at least one series or pass --all")
			}
			// Поврежденное хранилище можно очистить, ошибки восстановления не важны
			st, closeFn, err := openStation(cmd, opts)
			if st == nil {
				return err
			}
			defer closeFn()

			ids := args
			if all {
				ids = st.IDs()
			}
			for _, id := range ids {
				deleted, err := st.ClearStorage(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: deleted %d points\n", id, deleted)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Clear every configured series")
	return cmd
}

func newRenderCmd(opts *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "render <series>",
		Short: "Render a series to a PNG file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeFn, recoverErr := openStation(cmd, opts)
			if st == nil {
				return recoverErr
			}
			defer closeFn()

			snap, err := st.Snapshot(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = snap.ID + ".png"
			}
			return writeFile(output, func(w io.Writer) error { return export.RenderPNG(w, snap) })
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: <series>.png)")
	return cmd
}

func newExportCmd(opts *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export [series...]",
		Short: "Export series to an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeFn, recoverErr := openStation(cmd, opts)
			if st == nil {
				return recoverErr
			}
			defer closeFn()

			ids := args
			if len(ids) == 0 {
				ids = st.IDs()
			}
			snaps := make([]station.Snapshot, 0, len(ids))
			for _, id := range ids {
				snap, err := st.Snapshot(id)
				if err != nil {
					return err
				}
				snaps = append(snaps, snap)
			}
			return writeFile(output, func(w io.Writer) error { return export.WriteXLSX(w, snaps...) })
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "station.xlsx", "Output file")
	return cmd
}

func newWindowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "windows",
		Short: "List the available view windows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WINDOW\tHOURS\tLEDGER LINES\tUNIT")
			for _, w := range viewwindow.All() {
				if !w.Bounded() {
					fmt.Fprintf(tw, "%s\t-\t-\t-\n", w)
					continue
				}
				fmt.Fprintf(tw, "%s\t%.0f\t%d\t%s\n", w, w.Hours(), w.LedgerLines(), w.Unit())
			}
			return tw.Flush()
		},
	}
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
