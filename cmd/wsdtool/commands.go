package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wsdtool/wsdtool/internal/cache"
	"github.com/wsdtool/wsdtool/internal/discovery"
	"github.com/wsdtool/wsdtool/internal/logging"
	"github.com/wsdtool/wsdtool/internal/printer"
	"github.com/wsdtool/wsdtool/internal/transfer"
	"github.com/wsdtool/wsdtool/internal/transport"
	"github.com/wsdtool/wsdtool/internal/tui"
	"github.com/wsdtool/wsdtool/internal/ui"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

// Command flags
var (
	listFilter string
	monitorTUI bool
)

func init() {
	listCmd.Flags().StringVarP(&listFilter, "filter", "f", "ps", "Filter target types: p=printer, s=scanner")
	monitorCmd.Flags().IntVarP(&verbosity, "verbosity_lvl", "v", 0, "Log verbosity (0 warn, 1 info, 2 debug)")
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "Show an interactive device view")
	updateDBCmd.Flags().IntVarP(&verbosity, "verbosity_lvl", "v", 0, "Log verbosity (0 warn, 1 info, 2 debug)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(updateDBCmd)
	rootCmd.AddCommand(infoCmd)
}

// typesForFilter maps the -f letters to device types
func typesForFilter(filter string) (wsd.StringSet, error) {
	types := wsd.NewStringSet()
	for _, c := range filter {
		switch c {
		case 'p':
			types.Add(wsd.PrintDeviceType)
		case 's':
			types.Add(wsd.ScanDeviceType)
		default:
			return nil, fmt.Errorf("unknown filter %q (use p and/or s)", c)
		}
	}
	if types.Len() == 0 {
		return nil, errors.New("empty filter")
	}
	return types, nil
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List WSD devices",
	Long: `List the cached and newly discovered WSD devices.

Each device is queried with WS-Transfer Get for its manufacturer and model.
Devices that do not answer are left out.`,
	Example: `  # Printers and scanners
  wsdtool list

  # Scanners only, waiting 5 seconds for probe replies
  wsdtool list -f s -t 5`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	types, err := typesForFilter(listFilter)
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	m, store, err := a.openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	targets, err := a.getDevices(ctx, m, types)
	if err != nil {
		return err
	}

	sorted := targets.Sorted()
	rows := make([]*ui.DeviceRow, len(sorted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cache.DefaultConcurrency)
	for i, t := range sorted {
		g.Go(func() error {
			info, _, err := a.transfer.Get(gctx, t)
			if err != nil {
				logSkipped(t, err)
				return nil
			}
			rows[i] = &ui.DeviceRow{Target: t, Info: info, Nickname: a.cfg.Nickname(t.EpRefAddr)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var out []ui.DeviceRow
	for _, r := range rows {
		if r != nil {
			out = append(out, *r)
		}
	}
	fmt.Print(ui.RenderDeviceList(out, ui.IsTerminal()))
	return nil
}

// logSkipped records why t is missing from a listing. Unreachable devices
// are routine; a device that answers with garbage is worth a warning.
func logSkipped(t wsd.TargetService, err error) {
	if transport.IsConnectionError(err) {
		logging.Debug("Skipping unreachable device", zap.String("target", t.EpRefAddr), zap.Error(err))
		return
	}
	logging.Warn("Device answered metadata request with an error", zap.String("target", t.EpRefAddr), zap.Error(err))
}

var updateDBCmd = &cobra.Command{
	Use:   "update_db",
	Short: "Refresh the device cache",
	Long: `Probe the network once, drop cached devices that no longer answer
and store every newly discovered device.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		m, store, err := a.openCache()
		if err != nil {
			return err
		}
		defer store.Close()

		targets, err := a.getDevices(cmd.Context(), m, nil)
		if err != nil {
			return err
		}
		fmt.Printf("%d device(s) in cache\n", len(targets))
		return nil
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Follow Hello and Bye announcements",
	Long: `Refresh the device cache, then keep it current from Hello and Bye
announcements until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	m, store, err := a.openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	initial, err := a.getDevices(ctx, m, nil)
	if err != nil {
		return err
	}

	apply := func(ctx context.Context, ann discovery.Announcement) error {
		if err := m.Apply(ctx, ann); err != nil {
			logging.Warn("Failed to update cache", zap.Stringer("announcement", ann), zap.Error(err))
		}
		return nil
	}

	if !monitorTUI {
		fmt.Printf("Monitoring announcements (%d device(s) known), press Ctrl+C to stop\n", len(initial))
		return a.engine.Monitor(ctx, func(ctx context.Context, ann discovery.Announcement) error {
			fmt.Println(ui.FormatAnnouncement(ann))
			return apply(ctx, ann)
		})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := make(chan discovery.Announcement, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		err := a.engine.Monitor(ctx, func(ctx context.Context, ann discovery.Announcement) error {
			if err := apply(ctx, ann); err != nil {
				return err
			}
			select {
			case events <- ann:
			case <-ctx.Done():
			}
			return nil
		})
		if err != nil {
			errs <- err
		}
	}()

	return tui.RunMonitor(ctx, initial, events, errs)
}

var infoCmd = &cobra.Command{
	Use:   "info <endpoint>",
	Short: "Show a device's metadata",
	Long: `Fetch a device's model, device and hosted service metadata with
WS-Transfer Get. The endpoint is the device's endpoint reference address,
as printed by 'wsdtool monitor'.

When the device hosts a print service, its state, queue and consumables
are read with GetPrinterElements.`,
	Example: `  wsdtool info urn:uuid:4509a320-00a0-008f-00b6-002507510eca`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		m, store, err := a.openCache()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		t, err := a.findTarget(ctx, m, strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}
		info, hosted, err := a.transfer.Get(ctx, t)
		if err != nil {
			fmt.Println(ui.RenderFailure("Cannot read device metadata", err,
				"Check that the device is powered on",
				"Run 'wsdtool update_db' to refresh its address"))
			return err
		}
		fmt.Println(ui.RenderTargetInfo(t, info, hosted))

		if svc, ok := transfer.FindService(hosted, wsd.PrinterServiceType); ok {
			elems, err := printer.NewClient(a.soap).GetPrinterElements(ctx, svc)
			if err != nil {
				logging.Warn("Printer did not report its elements", zap.String("service", svc.EpRefAddr), zap.Error(err))
				return nil
			}
			fmt.Println(ui.RenderPrinterElements(elems))
		}
		return nil
	},
}
