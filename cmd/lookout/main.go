// Lookout classifies news articles against organization context and scores
// the quality of each classification with a second evaluator model.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	lc "github.com/linnemanlabs/lookout/internal/cfg"
	"github.com/linnemanlabs/lookout/internal/intel"
	"github.com/linnemanlabs/lookout/internal/intel/pgstore"
	"github.com/linnemanlabs/lookout/internal/llm/chutes"
	"github.com/linnemanlabs/lookout/internal/postgres"
)

const appName = "lookout"
const component = "pipeline"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set app name and component
	v.AppName = appName
	v.Component = component

	// Get build/version info
	vi := v.Get()

	// each package registers its own flags and options struct
	var (
		appCfg   lc.Config
		logCfg   log.Config
		opsCfg   opshttp.Config
		profCfg  prof.Config
		traceCfg otelx.Config
	)

	// register flags for each package, which will be parsed into the shared config struct
	appCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	opsCfg.RegisterFlags(flag.CommandLine)
	profCfg.RegisterFlags(flag.CommandLine)
	traceCfg.RegisterFlags(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	// parse flags to get config values from cmdline, we check env vars next which do not override cmdline flags
	flag.Parse()
	if showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	// Fill in config values from environment variables with prefix LOOKOUT_,
	// these do not override cmdline flags
	cfg.FillFromEnv(flag.CommandLine, "LOOKOUT_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		appCfg.Validate(),
		logCfg.Validate(),
		opsCfg.Validate(),
		profCfg.Validate(),
		traceCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// initialize logger early
	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer func() { _ = lg.Sync() }()

	// each run gets its own id so log lines from overlapping cron
	// invocations stay separable
	runID := ulid.Make().String()

	// create a logger with component and run fields pre-filled
	L := lg.With("component", vi.Component, "run_id", runID)

	// add logger to context
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"stage", appCfg.Stage,
		"organization", appCfg.OrganizationID,
		"limit", appCfg.Limit,
		"admin_port", opsCfg.Port,
		"enable_pprof", opsCfg.EnablePprof,
		"enable_pyroscope", profCfg.EnablePyroscope,
		"enable_tracing", traceCfg.EnableTracing,
		"trace_sample", traceCfg.TraceSample,
		"otlp_endpoint", traceCfg.OTLPEndpoint,
		"pyro_server", profCfg.PyroServer,
		"pyro_tenant", profCfg.PyroTenantID,
	)

	// Setup pyroscope profiling early so we get profiles from the entire app lifetime
	profOpts := profCfg.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
		"source":    "lmlabs-go-agent",
	}
	// Start profiling, returns a stop function to call for clean shutdown (flush buffers, etc)
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", profCfg.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}

	// Setup otel for tracing
	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version

	// Start otel, returns a shutdown function to call for clean shutdown (flush buffers, etc)
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx != nil {
		defer func() { _ = shutdownOtelx(context.Background()) }()
	}

	// Setup metrics, we use our own metrics package for internal instrumentation
	var m = metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(profErr == nil && profCfg.EnablePyroscope)

	// Pipeline metrics on the shared Prometheus registry.
	pipelineMetrics := intel.NewMetrics(m.Registry())

	// Register per-query DB duration histogram and wire the observer.
	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lookout_db_query_duration_seconds",
		Help:    "Duration of individual database queries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage", "outcome"})
	m.Registry().MustRegister(dbQueryDuration)

	postgres.SetQueryObserver(postgres.QueryObserverFunc(
		func(_ context.Context, stage, outcome string, dur time.Duration) {
			dbQueryDuration.WithLabelValues(stage, outcome).Observe(dur.Seconds())
		},
	))

	// liveness is always true if the app is able to respond; a batch run has
	// no load balancer so readiness mirrors it
	liveness := health.Fixed(true, "")

	// Configure ops http server for metrics, health checks, pprof, etc
	opsOpts := opsCfg.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = liveness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	// start admin/ops listener so scrapes and pprof work for the duration of
	// the run. sg restricts inbound to internal monitoring infrastructure.
	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() {
		err := opsHTTPStop(context.Background())
		if err != nil {
			L.Error(ctx, err, "failed to stop ops http listener")
		}
	}()

	// Connect to postgres and apply schema.
	pool, err := postgres.NewPool(ctx, appCfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres pool: %w", err)
	}
	defer pool.Close()
	store, err := pgstore.New(ctx, pool)
	if err != nil {
		return fmt.Errorf("pgstore init: %w", err)
	}

	// Load prompt/model configuration.
	prompts := intel.DefaultPrompts()
	if appCfg.PromptsFile != "" {
		prompts, err = intel.LoadPrompts(appCfg.PromptsFile)
		if err != nil {
			return fmt.Errorf("prompts: %w", err)
		}
		L.Info(ctx, "loaded prompt overrides", "file", appCfg.PromptsFile)
	}

	// Initialize the chat-completions client with the retry policy from
	// config; retries feed the shared counter.
	llm := chutes.New(appCfg.ChutesEndpoint, appCfg.ChutesAPIKey, chutes.Retry{
		MaxAttempts: appCfg.MaxAttempts,
		BaseDelay:   time.Duration(appCfg.RetryBaseSeconds) * time.Second,
		OnRetry: func(_ int, _ time.Duration) {
			pipelineMetrics.LLMRetriesTotal.Inc()
		},
	}, L)
	L.Info(ctx, "initialized LLM client",
		"classifier_model", prompts.ClassifierModel,
		"assessor_model", prompts.AssessorModel,
	)

	pacing := time.Duration(appCfg.PacingMillis) * time.Millisecond

	// Per-run DB stats for the rollup line at the end.
	ctx = postgres.NewRunDBStatsContext(ctx)

	runStart := time.Now()

	if appCfg.Stage == lc.StageClassify || appCfg.Stage == lc.StageAll {
		classifier := intel.NewClassifier(store, llm, prompts, L, pipelineMetrics)
		classifier.Pacing = pacing

		cctx := postgres.WithStage(ctx, intel.StageClassify)
		if _, err := classifier.Run(cctx, appCfg.OrganizationID, appCfg.Limit); err != nil {
			L.Error(ctx, err, "classification stage failed")
			return fmt.Errorf("classification stage: %w", err)
		}
	}

	if appCfg.Stage == lc.StageAssess || appCfg.Stage == lc.StageAll {
		assessor := intel.NewAssessor(store, llm, prompts, L, pipelineMetrics)
		assessor.Pacing = pacing

		actx := postgres.WithStage(ctx, intel.StageAssess)
		if _, err := assessor.Run(actx, appCfg.Limit); err != nil {
			L.Error(ctx, err, "assessment stage failed")
			return fmt.Errorf("assessment stage: %w", err)
		}
	}

	if stats, ok := postgres.RunDBStatsFromContext(ctx); ok {
		L.Info(ctx, "run complete",
			"duration", time.Since(runStart).Seconds(),
			"db_queries", stats.QueryCount,
			"db_time", stats.TotalDuration.Seconds(),
			"db_errors", stats.ErrorCount,
		)
	}

	return nil
}
