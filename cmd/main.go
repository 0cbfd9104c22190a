package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/logpost-sh/agent/internal/buildinfo"
	"github.com/logpost-sh/agent/internal/filter"
	"github.com/logpost-sh/agent/internal/heartbeat"
	"github.com/logpost-sh/agent/internal/hooks"
	"github.com/logpost-sh/agent/internal/hooks/pubsub"
	"github.com/logpost-sh/agent/internal/hooks/webhook"
	"github.com/logpost-sh/agent/internal/host"
	"github.com/logpost-sh/agent/internal/model"
	"github.com/logpost-sh/agent/internal/poller"
	"github.com/logpost-sh/agent/internal/reconciler"
	"github.com/logpost-sh/agent/internal/sink"
	"github.com/logpost-sh/agent/internal/snapshot"
	"github.com/logpost-sh/agent/internal/source"
)

const agentName = "logpost-agent"

// config holds all command-line configuration
type config struct {
	metricsAddr       string
	discordToken      string
	guildID           string
	categoryID        string
	pollInterval      time.Duration
	reconcileInterval time.Duration
	warmupDelay       time.Duration
	heartbeatInterval time.Duration
	tailLines         int
	adoptExisting     bool
	webhookURL        string
	pubsubTopic       string
	watchNames        string
	excludeNames      string
	requireLabels     string
	excludeLabels     string
	devLogging        bool
}

func main() {
	cfg := parseFlags()

	logger := setupLogger(cfg)
	setupLog := logger.WithName("setup")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logr.NewContext(ctx, logger)

	if cfg.discordToken == "" {
		setupLog.Error(nil, "discord token is required (flag --discord-token or env DISCORD_TOKEN)")
		os.Exit(1)
	}
	if cfg.guildID == "" || cfg.categoryID == "" {
		setupLog.Error(nil, "guild-id and category-id are required")
		os.Exit(1)
	}

	src, err := source.NewDockerSource(ctx)
	if err != nil {
		setupLog.Error(err, "unable to connect to docker daemon")
		os.Exit(1)
	}

	hostInfo := resolveHost(ctx, setupLog)
	agentVersion := buildinfo.AgentVersion()

	state := snapshot.New()
	notifSink := sink.NewDiscordSink(cfg.discordToken)

	eventPublishers, heartbeatPublishers := setupPublishers(ctx, cfg, hostInfo.HostID, setupLog)

	var eventChan chan model.WorkloadEvent
	if len(eventPublishers) > 0 {
		eventChan = make(chan model.WorkloadEvent, 100)
		queue := hooks.NewEventPublisherQueue(eventChan, eventPublishers)
		go queue.Loop(ctx)
	}

	if len(heartbeatPublishers) > 0 {
		sender := heartbeat.NewSender(heartbeat.Config{
			Interval:     cfg.heartbeatInterval,
			HostID:       hostInfo.HostID,
			AgentVersion: agentVersion,
		}, state, heartbeatPublishers)
		go sender.Start(ctx)
	}

	startMetricsServer(cfg, setupLog)

	pollerCfg := poller.DefaultConfig()
	pollerCfg.Interval = cfg.pollInterval
	pollerCfg.TailLines = cfg.tailLines

	workloadFilter := filter.New(filter.Config{
		WatchNames:    splitAndTrim(cfg.watchNames),
		ExcludeNames:  splitAndTrim(cfg.excludeNames),
		RequireLabels: splitAndTrim(cfg.requireLabels),
		ExcludeLabels: splitAndTrim(cfg.excludeLabels),
	})

	go poller.New(pollerCfg, src, state, workloadFilter).Start(ctx)

	reconcilerCfg := reconciler.Config{
		Interval:      cfg.reconcileInterval,
		WarmupDelay:   cfg.warmupDelay,
		GuildID:       cfg.guildID,
		CategoryID:    cfg.categoryID,
		AdoptExisting: cfg.adoptExisting,
		AgentName:     agentName,
		AgentVersion:  agentVersion,
		HostID:        hostInfo.HostID,
	}

	setupLog.Info("starting agent",
		"version", agentVersion,
		"hostID", hostInfo.HostID,
		"guild", cfg.guildID,
		"category", cfg.categoryID,
	)

	reconciler.New(reconcilerCfg, state, notifSink, eventChan).Start(ctx)
}

func parseFlags() config {
	var cfg config

	flag.StringVar(&cfg.metricsAddr, "metrics-bind-address", ":8080",
		"The address the metrics endpoint binds to. Set to 0 to disable the metrics service.")
	flag.StringVar(&cfg.discordToken, "discord-token", os.Getenv("DISCORD_TOKEN"),
		"Discord bot token used for all sink calls")
	flag.StringVar(&cfg.guildID, "guild-id", os.Getenv("DISCORD_GUILD_ID"),
		"Discord guild to create workload channels in")
	flag.StringVar(&cfg.categoryID, "category-id", os.Getenv("DISCORD_CATEGORY_ID"),
		"Discord category the workload channels live under")
	flag.DurationVar(&cfg.pollInterval, "poll-interval", 30*time.Second,
		"Interval between workload source poll cycles")
	flag.DurationVar(&cfg.reconcileInterval, "reconcile-interval", 30*time.Second,
		"Interval between reconcile cycles")
	flag.DurationVar(&cfg.warmupDelay, "warmup-delay", 10*time.Second,
		"Delay before the first reconcile cycle so the first snapshot is populated")
	flag.DurationVar(&cfg.heartbeatInterval, "heartbeat-interval", 5*time.Minute,
		"Interval between heartbeat publishes")
	flag.IntVar(&cfg.tailLines, "tail-lines", 40,
		"Number of log lines fetched per workload each cycle")
	flag.BoolVar(&cfg.adoptExisting, "adopt-existing", true,
		"Adopt name-matching channels that already exist in the category instead of creating duplicates")
	flag.StringVar(&cfg.webhookURL, "webhook-url", "",
		"Optional HTTP endpoint that receives workload lifecycle events as JSON")
	flag.StringVar(&cfg.pubsubTopic, "pubsub-topic", os.Getenv("PUBSUB_TOPIC"),
		"Optional Google Cloud Pub/Sub topic path (projects/<project>/topics/<topic>) for lifecycle events")
	flag.StringVar(&cfg.watchNames, "watch-names", "",
		"Comma-separated glob patterns of container names to mirror (default: all)")
	flag.StringVar(&cfg.excludeNames, "exclude-names", "",
		"Comma-separated glob patterns of container names to skip")
	flag.StringVar(&cfg.requireLabels, "require-labels", "",
		"Comma-separated label keys a container must carry to be mirrored")
	flag.StringVar(&cfg.excludeLabels, "exclude-labels", "",
		"Comma-separated label key=value pairs that exclude a container (e.g. 'logpost.sh/ignore=true')")
	flag.BoolVar(&cfg.devLogging, "dev-logging", false,
		"Use human-readable development logging")
	flag.Parse()

	return cfg
}

func setupLogger(cfg config) logr.Logger {
	var zapLog *zap.Logger
	var err error
	if cfg.devLogging {
		zapLog, err = zap.NewDevelopment()
	} else {
		zapLog, err = zap.NewProduction()
	}
	if err != nil {
		// No logger yet; nothing better to do than die loudly.
		panic(err)
	}
	return zapr.NewLogger(zapLog)
}

func resolveHost(ctx context.Context, setupLog logr.Logger) *host.Info {
	info, err := host.NewResolver(host.DefaultConfig()).Resolve(ctx)
	if err != nil {
		setupLog.Error(err, "unable to resolve host identity, using fallback")
		return &host.Info{HostID: "unknown", Provider: host.ProviderUnknown}
	}
	setupLog.Info("resolved host identity", "hostID", info.HostID, "provider", info.Provider)
	return info
}

func setupPublishers(ctx context.Context, cfg config, hostID string, setupLog logr.Logger) ([]hooks.EventPublisher, []hooks.HeartbeatPublisher) {
	var eventPublishers []hooks.EventPublisher
	var heartbeatPublishers []hooks.HeartbeatPublisher

	if cfg.webhookURL != "" {
		wh := webhook.NewPublisher(cfg.webhookURL)
		eventPublishers = append(eventPublishers, wh)
		heartbeatPublishers = append(heartbeatPublishers, wh)
		setupLog.Info("Webhook publisher enabled", "endpoint", cfg.webhookURL)
	}

	if cfg.pubsubTopic != "" {
		ps, err := pubsub.NewPubSubPublisher(ctx, cfg.pubsubTopic, hostID)
		if err != nil {
			setupLog.Error(err, "unable to create Pub/Sub publisher",
				"hint", "Ensure valid credentials via GOOGLE_APPLICATION_CREDENTIALS or gcloud auth")
			os.Exit(1)
		}
		eventPublishers = append(eventPublishers, ps)
		setupLog.Info("Google Pub/Sub publisher enabled", "topic", cfg.pubsubTopic)
	}

	return eventPublishers, heartbeatPublishers
}

func startMetricsServer(cfg config, setupLog logr.Logger) {
	if cfg.metricsAddr == "0" || cfg.metricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		setupLog.Info("serving metrics", "addr", cfg.metricsAddr)
		if err := http.ListenAndServe(cfg.metricsAddr, mux); err != nil {
			setupLog.Error(err, "metrics server stopped")
		}
	}()
}

// splitAndTrim splits a comma-separated string and trims whitespace from each element
func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
