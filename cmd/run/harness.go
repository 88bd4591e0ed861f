package run

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saveenergy/playertester/internal/api"
	"github.com/saveenergy/playertester/internal/bridge"
	"github.com/saveenergy/playertester/internal/config"
	"github.com/saveenergy/playertester/internal/live"
	"github.com/saveenergy/playertester/internal/logging"
	"github.com/saveenergy/playertester/internal/manifest"
	"github.com/saveenergy/playertester/internal/metrics"
	"github.com/saveenergy/playertester/internal/results"
	"github.com/saveenergy/playertester/pkg/player"
	"github.com/saveenergy/playertester/pkg/scenario"
)

const preflightTimeout = 15 * time.Second

// harness is the HTTP surface plus everything a run reports into.
type harness struct {
	cfg      *config.Config
	store    *results.Store
	exporter *metrics.Exporter
	bridge   *bridge.Hub
	live     *live.Hub
	server   *http.Server
	listener net.Listener
	logger   *logging.Logger
}

func startHarness(cfg *config.Config, version string) (*harness, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := results.New(filepath.Join(cfg.DataDir, "runs.db"), cfg.MaxStoredRuns)
	if err != nil {
		return nil, err
	}

	h := &harness{
		cfg:    cfg,
		store:  store,
		bridge: bridge.NewHub(),
		live:   live.NewHub(),
		logger: logging.NewLogger("harness"),
	}
	h.bridge.SetAllowedOrigins(cfg.AllowedOrigins)
	h.bridge.SetPingInterval(cfg.WebSocketPingInterval)
	h.bridge.SetCommandTimeout(cfg.CommandTimeout)
	h.live.SetAllowedOrigins(cfg.AllowedOrigins)
	h.live.SetPingInterval(cfg.WebSocketPingInterval)

	apiHandler := api.NewHandler(h.bridge)
	apiHandler.SetVersion(version)
	router := api.NewRouter(apiHandler)
	router.SetBridge(h.bridge)
	router.SetLiveHub(h.live)
	router.SetResultsHandler(results.NewHandler(store))
	router.SetAllowedOrigins(cfg.AllowedOrigins)
	router.SetWebRoot(cfg.WebRoot)

	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		h.exporter = metrics.NewExporter(reg)
		router.SetMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	ln, err := net.Listen("tcp", cfg.ListenAddress())
	if err != nil {
		h.closeHubs()
		store.Close()
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddress(), err)
	}
	h.listener = ln
	h.server = &http.Server{
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Error("Server failed", logging.F("error", err))
		}
	}()
	h.logger.Info("Server starting", logging.F("address", ln.Addr().String()))
	return h, nil
}

// PageURL is where a browser loads the player page.
func (h *harness) PageURL() string {
	return "http://" + h.listener.Addr().String() + "/"
}

// execute runs one scenario against the connected page and stores the run.
func (h *harness) execute(ctx context.Context, opts *Options, formatter OutputFormatter) (*results.Run, *manifest.Ladder, error) {
	scfg := scenario.DefaultConfig()
	scfg.RunID = uuid.New().String()
	scfg.ManifestURL = opts.ManifestURL
	scfg.Timeout = opts.Timeout
	scfg.LowLatency = opts.LowLatency
	scfg.PollInterval = opts.Poll
	policy, err := scenario.ParseFinishPolicy(opts.FinishOn)
	if err != nil {
		return nil, nil, err
	}
	scfg.FinishOn = policy
	if err := scfg.Validate(); err != nil {
		return nil, nil, err
	}

	var ladder *manifest.Ladder
	if !opts.NoPreflight {
		pctx, cancel := context.WithTimeout(ctx, preflightTimeout)
		ladder, err = manifest.Inspect(pctx, opts.ManifestURL)
		cancel()
		if err != nil {
			h.logger.Warn("Manifest preflight failed", logging.F("error", err))
		} else {
			h.logger.Info("Manifest preflight",
				logging.F("format", string(ladder.Format)),
				logging.F("live", ladder.Live),
				logging.F("variants", len(ladder.Variants)))
			formatter.FormatLadder(ladder)
		}
	}

	formatter.FormatWaiting(h.PageURL())
	wctx, cancel := context.WithTimeout(ctx, opts.Wait)
	page, err := h.bridge.WaitForPage(wctx)
	cancel()
	if err != nil {
		return nil, ladder, err
	}
	h.logger.Info("Player page attached", logging.F("agent", page.Agent()))

	samples := metrics.NewStore()
	sinks := []player.Sink{samples, h.live.Sink(scfg.RunID)}
	if h.exporter != nil {
		sinks = append(sinks, h.exporter.Sink(scfg.RunID))
	}

	runner := scenario.NewRunner(page)
	res, err := runner.Run(ctx, page.Media(), metrics.NewFanout(sinks...), scfg)
	if err != nil {
		return nil, ladder, err
	}

	if h.exporter != nil {
		h.exporter.ObserveRun(res)
	}
	h.live.Complete(scfg.RunID, res)

	run := results.RunFromResult(res, scfg.LowLatency, scfg.FinishOn.String(), samples.Summary(), samples.Len())
	if err := h.store.Save(run, samples.Samples()); err != nil {
		h.logger.Warn("Saving run failed", logging.F("run", run.ID), logging.F("error", err))
	}
	return &run, ladder, nil
}

func (h *harness) closeHubs() {
	h.bridge.Close()
	h.live.Close()
}

func (h *harness) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.closeHubs()
	if h.server != nil {
		if err := h.server.Shutdown(ctx); err != nil {
			h.logger.Warn("Server shutdown error", logging.F("error", err))
		}
	}
	h.store.Close()
	h.logger.Info("Server stopped")
}
