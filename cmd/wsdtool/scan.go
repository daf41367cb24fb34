package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wsdtool/wsdtool/internal/eventing"
	"github.com/wsdtool/wsdtool/internal/logging"
	"github.com/wsdtool/wsdtool/internal/scan"
	"github.com/wsdtool/wsdtool/internal/scanmon"
	"github.com/wsdtool/wsdtool/internal/soap"
	"github.com/wsdtool/wsdtool/internal/ui"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

const (
	subscriptionLifetime = time.Hour
	shutdownTimeout      = 10 * time.Second
)

// Scan command flags
var (
	listenAddr string
	notifyAddr string
	allowScan  bool
	scanDir    string
)

func init() {
	scanMonitorCmd.Flags().StringVar(&listenAddr, "listen", "", "Local address for event notifications (default from config, :6666)")
	scanMonitorCmd.Flags().StringVar(&notifyAddr, "notify", "", "URL the scanner posts events to (default derived from --listen)")
	scanMonitorCmd.Flags().BoolVar(&allowScan, "allow-scan", false, "Register as a scan destination and save scans started at the device")
	scanMonitorCmd.Flags().StringVarP(&scanDir, "output", "o", "", "Directory for scanned images (default from config)")
	scanCmd.Flags().StringVarP(&scanDir, "output", "o", "", "Directory for scanned images (default from config)")

	rootCmd.AddCommand(scanMonitorCmd)
	rootCmd.AddCommand(scanCmd)
}

var scanMonitorCmd = &cobra.Command{
	Use:   "scan-monitor <endpoint>",
	Short: "Follow a scanner's status and job events",
	Long: `Subscribe to a scanner's events and print status, condition and job
changes as they arrive.

With --allow-scan the tool also registers as a scan destination: scans
started from the device panel are retrieved and written to the output
directory.`,
	Example: `  wsdtool scan-monitor urn:uuid:4509a320-00a0-008f-00b6-002507510eca

  # Accept scans from the device panel
  wsdtool scan-monitor urn:uuid:4509a320-00a0-008f-00b6-002507510eca --allow-scan -o ~/scans`,
	Args: cobra.ExactArgs(1),
	RunE: runScanMonitor,
}

func runScanMonitor(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		a.cfg.Events.Listen = listenAddr
	}
	if notifyAddr != "" {
		a.cfg.Events.Notify = notifyAddr
	}
	if scanDir != "" {
		a.cfg.Events.ScanDir = scanDir
	}
	notify, err := a.cfg.Events.NotifyAddr()
	if err != nil {
		return err
	}

	m, store, err := a.openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	svc, err := a.findScanner(ctx, m, args[0])
	if err != nil {
		return err
	}

	scanClient := scan.NewClient(a.soap)
	listener := eventing.NewListener(a.cfg.Events.Listen, nil)
	ended := make(chan string, 2)
	listener.OnSubscriptionEnd = func(msg *soap.Message) {
		select {
		case ended <- eventing.EndedSubscription(msg):
		default:
		}
	}
	opts := scanmon.Options{
		NotifyAddr: notify,
		Expires:    eventing.ExpiresAfter(subscriptionLifetime),
	}
	if allowScan {
		listener.ScanHandler = scan.NewJobRunner(scanClient, a.cfg.Events.ScanDir)
		opts.DisplayName = a.cfg.Events.DisplayName
	}
	if err := listener.Start(); err != nil {
		return err
	}

	mon, err := scanmon.New(ctx, scanClient, eventing.NewClient(a.soap), listener, svc, opts)
	if err != nil {
		shutdownListener(listener)
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := mon.Close(shutdownCtx); err != nil {
			logging.Warn("Scanner monitor did not close cleanly", zap.Error(err))
		}
	}()

	params := []ui.Param{{Key: "Scanner", Value: svc.EpRefAddr}, {Key: "Listen", Value: a.cfg.Events.Listen}, {Key: "Notify", Value: notify}}
	if allowScan {
		params = append(params, ui.Param{Key: "Scans", Value: a.cfg.Events.ScanDir})
	}
	fmt.Println(ui.NewHeader("Scanner monitor", "wsdtool scan-monitor", params...).Render())

	desc := mon.Description()
	st := mon.Status()
	fmt.Printf("%s: %s\n", desc.Name, st.State)
	printConditions(st)
	printJobLists(ctx, scanClient, svc)

	renew := time.NewTicker(subscriptionLifetime / 2)
	defer renew.Stop()
	for {
		waitCtx, stop := context.WithTimeout(ctx, time.Second)
		err := mon.Wait(waitCtx)
		stop()

		select {
		case <-ctx.Done():
			return nil
		case id := <-ended:
			if mon.SubscriptionEnded(id) {
				fmt.Println(ui.NewWarningResult("Subscription ended by the scanner").Render())
				return nil
			}
			fmt.Println(ui.NewWarningResult("Scan destination dropped by the scanner").Render())
		case <-renew.C:
			if err := mon.Renew(ctx, eventing.ExpiresAfter(subscriptionLifetime)); err != nil {
				return fmt.Errorf("renew subscription: %w", err)
			}
		default:
		}
		if err != nil {
			continue
		}
		printChanges(mon)
	}
}

func printChanges(mon *scanmon.Monitor) {
	changed := mon.Changed()
	if changed.Description {
		fmt.Printf("Description: %s\n", mon.Description().Name)
	}
	if changed.Configuration {
		mon.Configuration()
		fmt.Println("Configuration changed")
	}
	if changed.DefaultTicket {
		fmt.Printf("Default ticket: %s\n", mon.DefaultTicket().Params.Format)
	}
	if changed.Status {
		st := mon.Status()
		fmt.Printf("State: %s %s\n", st.State, strings.Join(st.Reasons, ","))
		printConditions(st)
	}
	if changed.Jobs {
		jobs := mon.Jobs()
		for _, j := range jobs.Active {
			fmt.Printf("Job %d: %s (%d scanned)\n", j.ID, j.State, j.ScansCompleted)
		}
		if n := len(jobs.Ended); n > 0 {
			j := jobs.Ended[n-1]
			fmt.Printf("Job %d ended: %s\n", j.ID, j.State)
		}
	}
}

// printJobLists shows the jobs the scanner already knows about. Devices
// that keep no job lists only get a debug line.
func printJobLists(ctx context.Context, c *scan.Client, svc wsd.HostedService) {
	active, err := c.GetActiveJobs(ctx, svc)
	if err != nil {
		logging.Debug("No active job list", zap.Error(err))
	}
	for _, j := range active {
		fmt.Printf("Job %d: %s (%d scanned) %s\n", j.ID, j.State, j.ScansCompleted, j.Name)
	}

	history, err := c.GetJobHistory(ctx, svc)
	if err != nil {
		logging.Debug("No job history", zap.Error(err))
	}
	for _, j := range history {
		fmt.Printf("Job %d ended: %s %s\n", j.ID, j.State, j.Name)
	}
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdownListener stops l on its own deadline
func shutdownListener(l shutdowner) {
	ctx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := l.Shutdown(ctx); err != nil {
		logging.Warn("Event listener did not shut down cleanly", zap.Error(err))
	}
}

func printConditions(st scan.ScannerStatus) {
	for id, c := range st.Active {
		fmt.Printf("  ! %d %s %s (%s)\n", id, c.Severity, c.Name, c.Component)
	}
}

var scanCmd = &cobra.Command{
	Use:   "scan <endpoint>",
	Short: "Scan with the default ticket",
	Long: `Create a scan job with the scanner's default ticket and save every
retrieved image to the output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if scanDir != "" {
			a.cfg.Events.ScanDir = scanDir
		}
		m, store, err := a.openCache()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		svc, err := a.findScanner(ctx, m, args[0])
		if err != nil {
			return err
		}

		runner := scan.NewJobRunner(scan.NewClient(a.soap), a.cfg.Events.ScanDir)
		files, err := runner.Run(ctx, svc, "", "")
		if err != nil {
			fmt.Println(ui.RenderFailure("Scan failed", err, "Check that the scanner is idle and loaded"))
			return err
		}

		r := ui.NewSuccessResult("Scan complete")
		for _, f := range files {
			r.AddDetail("File", f)
		}
		fmt.Println(r.Render())
		return nil
	},
}
