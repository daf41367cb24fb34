// Wsdtool discovers and talks to WSD printers and scanners.
//
// It finds devices with WS-Discovery, keeps a cache of them across runs,
// follows Hello and Bye announcements, and subscribes to scanner events.
//
// Usage:
//
//	wsdtool [command] [flags]
//
// See 'wsdtool --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wsdtool/wsdtool/internal/cache"
	"github.com/wsdtool/wsdtool/internal/config"
	"github.com/wsdtool/wsdtool/internal/discovery"
	"github.com/wsdtool/wsdtool/internal/logging"
	"github.com/wsdtool/wsdtool/internal/soapclient"
	"github.com/wsdtool/wsdtool/internal/transfer"
	"github.com/wsdtool/wsdtool/internal/transport"
	"github.com/wsdtool/wsdtool/internal/version"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	debug      bool
	timeout    int
	configPath string
	verbosity  int
)

var rootCmd = &cobra.Command{
	Use:   "wsdtool",
	Short: "WSD device discovery and scanner events",
	Long: `A utility for Web Services for Devices (WSD) printers and scanners.

Discovers devices with WS-Discovery multicast, keeps a persistent cache of
them, follows their Hello and Bye announcements, and subscribes to scanner
status and job events.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().IntVarP(&timeout, "timeout", "t", 0, "Timeout in seconds for probes and requests (default from config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wsdtool %s\n", version.Full())
		if version.IsDev() {
			fmt.Println("unreleased build")
		}
	},
}

// app holds what every command needs, built from flags and config
type app struct {
	cfg      *config.Config
	sess     *config.Session
	soap     *soapclient.Client
	engine   *discovery.Engine
	transfer *transfer.Client
}

func newApp() (*app, error) {
	if err := logging.Initialize(logging.LevelForVerbosity(verbosity, debug)); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		cfg.Timeouts.Probe = time.Duration(timeout) * time.Second
	}

	sess, err := config.NewSession(cfg, debug)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		sess.WithTimeout(time.Duration(timeout) * time.Second)
	}

	sc := soapclient.New(transport.NewClient(sess.Timeouts.Request), sess.ID)
	engine := discovery.NewEngine(nil)
	engine.ResolveTimeout = sess.Timeouts.Resolve

	return &app{
		cfg:      cfg,
		sess:     sess,
		soap:     sc,
		engine:   engine,
		transfer: transfer.NewClient(sc),
	}, nil
}

// openCache opens the device cache. The caller closes the store.
func (a *app) openCache() (*cache.Manager, cache.Store, error) {
	store, err := cache.OpenSQLite(a.sess.CachePath)
	if err != nil {
		return nil, nil, err
	}
	m := cache.NewManager(store, a.engine, a.transfer)
	m.LivenessTimeout = a.sess.Timeouts.Liveness
	return m, store, nil
}

// getDevices returns the live cached targets merged with a fresh probe
func (a *app) getDevices(ctx context.Context, m *cache.Manager, types wsd.StringSet) (wsd.TargetSet, error) {
	return m.GetDevices(ctx, cache.Options{
		UseCache:     true,
		UseDiscovery: true,
		ProbeTimeout: a.cfg.Timeouts.Probe,
		Types:        types,
	})
}

// findTarget looks epRefAddr up in the cache, resolving it on the network
// when it is unknown or has no transport address.
func (a *app) findTarget(ctx context.Context, m *cache.Manager, epRefAddr string) (wsd.TargetService, error) {
	targets, err := m.Targets(ctx)
	if err != nil {
		return wsd.TargetService{}, err
	}
	if t, ok := targets.Get(epRefAddr); ok && t.Usable() {
		return t, nil
	}

	t, ok, err := a.engine.Resolve(ctx, wsd.TargetService{EpRefAddr: epRefAddr})
	if err != nil {
		return wsd.TargetService{}, err
	}
	if !ok || !t.Usable() {
		return wsd.TargetService{}, fmt.Errorf("target %s not found", epRefAddr)
	}
	if err := m.Remember(ctx, t); err != nil {
		return wsd.TargetService{}, err
	}
	return t, nil
}

// findScanner returns the scanner service hosted by epRefAddr
func (a *app) findScanner(ctx context.Context, m *cache.Manager, epRefAddr string) (wsd.HostedService, error) {
	t, err := a.findTarget(ctx, m, epRefAddr)
	if err != nil {
		return wsd.HostedService{}, err
	}
	_, hosted, err := a.transfer.Get(ctx, t)
	if err != nil {
		return wsd.HostedService{}, err
	}
	svc, ok := transfer.FindService(hosted, wsd.ScannerServiceType)
	if !ok {
		return wsd.HostedService{}, fmt.Errorf("%s hosts no scanner service", epRefAddr)
	}
	return svc, nil
}
