package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
	"github.com/smartenit-eu/smartenit-sub001/dtm/api"
	"github.com/smartenit-eu/smartenit-sub001/dtm/audit"
	"github.com/smartenit-eu/smartenit-sub001/dtm/device"
	"github.com/smartenit-eu/smartenit-sub001/dtm/economic"
	"github.com/smartenit-eu/smartenit-sub001/dtm/inventory"
	"github.com/smartenit-eu/smartenit-sub001/dtm/peer"
	"github.com/smartenit-eu/smartenit-sub001/dtm/trace"
)

// runOptions are the daemon settings taken from flags.
type runOptions struct {
	listen          string        // HTTP listen address
	bootstrapPath   string        // Optional reference vector installed at startup
	auditPath       string        // Optional SQLite audit database
	workers         int           // Dispatcher workers
	queueSize       int           // Dispatcher queue capacity
	sendTimeout     time.Duration // Per-task and per-delivery timeout
	shutdownTimeout time.Duration // Grace period for in-flight HTTP requests
	traceLevel      string        // Decision trace level: none or decisions

	// ready, if set, is called with the bound address once the API listens.
	ready func(net.Addr)
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	c := &cobra.Command{
		Use:   "run",
		Short: "Run the economic analyzer and traffic manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !trace.IsValidTraceLevel(opts.traceLevel) {
				return fmt.Errorf("invalid --trace %q; valid: none, decisions", opts.traceLevel)
			}
			inv, err := inventory.Load(inventoryPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, inv, opts)
		},
	}
	c.Flags().StringVar(&opts.listen, "listen", ":8080", "HTTP listen address for the ingest API and /metrics")
	c.Flags().StringVar(&opts.bootstrapPath, "bootstrap-rvector", "", "Reference vector YAML installed before the first accounting period ends")
	c.Flags().StringVar(&opts.auditPath, "audit-db", "", "SQLite database for 95th-percentile sample history (disabled if empty)")
	c.Flags().IntVar(&opts.workers, "workers", 4, "Number of compensation dispatch workers")
	c.Flags().IntVar(&opts.queueSize, "queue-size", 256, "Capacity of the compensation dispatch queue")
	c.Flags().DurationVar(&opts.sendTimeout, "send-timeout", 10*time.Second, "Timeout of one compensation dispatch")
	c.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 5*time.Second, "Grace period for in-flight requests on shutdown")
	c.Flags().StringVar(&opts.traceLevel, "trace", string(trace.TraceLevelNone), "Decision trace level (none, decisions), summarized on shutdown")
	return c
}

// runDaemon serves until ctx is cancelled or the server fails.
func runDaemon(ctx context.Context, inv *inventory.Inventory, opts runOptions) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := dtm.NewMetrics(reg)

	control, err := inv.SystemControl()
	if err != nil {
		return err
	}
	var configurator dtm.DeviceConfigurator
	if control.DelayTolerant {
		logrus.Warn("delay-tolerant management enabled; device changes are logged only (dry run)")
		configurator = device.NewDryRun()
	}

	var auditSink economic.AuditSink
	if opts.auditPath != "" {
		store, err := audit.Open(opts.auditPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		auditSink = store
		logrus.Infof("auditing 95th-percentile periods to %s", opts.auditPath)
	}

	dispatcher := dtm.NewDispatcher(opts.workers, opts.queueSize, opts.sendTimeout, metrics)
	dispatcher.Start(ctx)
	defer func() { _ = dispatcher.Close() }()

	decisions := trace.NewDecisionTrace(trace.TraceConfig{Level: trace.TraceLevel(opts.traceLevel)})
	tm, err := dtm.NewTrafficManager(inv, peer.NewHTTPSender(opts.sendTimeout), configurator, dispatcher,
		dtm.WithMetrics(metrics), dtm.WithTrace(decisions))
	if err != nil {
		return err
	}
	registry := economic.NewRegistry(inv, tm, auditSink)

	if opts.bootstrapPath != "" {
		r, err := dtm.LoadReferenceVector(opts.bootstrapPath)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		if err := tm.BootstrapVector(ctx, r); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		if err := registry.SeedReference(r); err != nil {
			return fmt.Errorf("bootstrap: seeding economic analyzer: %w", err)
		}
	}

	apiServer := &api.Server{
		Reports:      registry,
		Manager:      tm,
		Compensation: logCompensation,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	ln, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", opts.listen, err)
	}
	server := &http.Server{Handler: apiServer.Handler(), ReadHeaderTimeout: 10 * time.Second}
	logrus.Infof("serving on %s with %d links and %d dispatch workers", ln.Addr(), len(inv.LinkIDs()), opts.workers)
	if opts.ready != nil {
		opts.ready(ln.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	logrus.Info("shutting down")
	if decisions.Enabled() {
		logTraceSummary(trace.Summarize(decisions))
	}
	return err
}

func logTraceSummary(s *trace.TraceSummary) {
	logrus.WithFields(logrus.Fields{
		"references":       s.References,
		"dispatches":       s.Dispatches,
		"suppressed":       s.Suppressed,
		"peer_deliveries":  s.PeerDeliveries,
		"peer_failures":    s.PeerFailures,
		"suppression_rate": s.SuppressionRate,
	}).Info("decision trace summary")
}

// logCompensation handles compensation vectors sent by remote peers.
func logCompensation(_ context.Context, m peer.Message) error {
	fields := logrus.Fields{"as": m.Compensation.SourceAS}
	for _, v := range m.Compensation.Values {
		fields[v.Prefix.String()] = v.Value
	}
	logrus.WithFields(fields).Infof("compensation received (reference=%t)", m.Reference != nil)
	return nil
}
