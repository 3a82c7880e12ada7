package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry"
	"github.com/zowobo/relay"
	"github.com/zowobo/relay/handlers/whatsapp"
	"github.com/zowobo/relay/services/ffmpeg"
	"github.com/zowobo/relay/services/openai"
	"github.com/zowobo/relay/utils"

	// load available thread stores
	_ "github.com/zowobo/relay/backends/redisstore"
	_ "github.com/zowobo/relay/backends/sqlstore"
)

var version = "Dev"

func main() {
	config := relay.LoadConfig("relay.toml")

	// if we have a custom version, use it
	if version != "Dev" {
		config.Version = version
	}

	var level slog.Level
	err := level.UnmarshalText([]byte(config.LogLevel))
	if err != nil {
		log.Fatalf("invalid log level %s", config.LogLevel)
	}

	// configure our logger
	logHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(logHandler))

	logger := slog.With("comp", "main")
	logger.Info("starting relay", "version", version)

	// if we have a DSN entry, try to initialize it
	if config.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:           config.SentryDSN,
			EnableTracing: false,
		})
		if err != nil {
			log.Fatalf("error initiating sentry client, error %s, dsn %s", err, config.SentryDSN)
		}

		defer sentry.Flush(2 * time.Second)

		logger = slog.New(
			slogmulti.Fanout(
				logHandler,
				slogsentry.Option{Level: slog.LevelError}.NewSentryHandler(),
			),
		)
		logger = logger.With("release", version)
		slog.SetDefault(logger)
	}

	if err := config.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// load our thread store
	store, err := relay.NewStore(config)
	if err != nil {
		logger.Error("error creating thread store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// locks and dedupe are shared through redis if we have it, otherwise they're local to this process
	var remote relay.RemoteLocker
	var seen relay.SeenTracker = relay.NewMemorySeen(24 * time.Hour)

	if config.Redis != "" {
		rp, err := relay.NewRedisPool(config.Redis, config.MaxConcurrentEvents*2)
		if err != nil {
			logger.Error("error connecting to redis", "error", err)
			os.Exit(1)
		}
		defer rp.Close()

		remote = relay.NewRedisLocker(rp, config.RequestTimeout(), config.LockTimeout())
		seen = relay.NewRedisSeen(rp)
	}

	httpClient := utils.GetHTTPClient()

	wa, err := whatsapp.NewClient(httpClient, config.WhatsappGraphURL, config.WhatsappAPIVersion, config.WhatsappAccessToken, config.WhatsappPhoneNumberID, config.SendTimeout())
	if err != nil {
		logger.Error("error creating whatsapp client", "error", err)
		os.Exit(1)
	}

	ai, err := openai.NewClient(httpClient, config.OpenAIBaseURL, config.OpenAIAPIKey, config.OpenAIAssistantID, config.OpenAITranscribeModel)
	if err != nil {
		logger.Error("error creating openai client", "error", err)
		os.Exit(1)
	}

	threads := relay.NewThreads(store, ai)
	normalizer := relay.NewNormalizer(wa, ffmpeg.NewConverter(config.FFmpegPath), ai, config.ScratchDir, config.MaxMediaBytes)
	orchestrator := relay.NewOrchestrator(threads, ai, config.PollInterval(), config.RunTimeout(), config.PersonalizeRuns)
	rl := relay.NewRelay(normalizer, orchestrator, wa, relay.NewContactLocker(remote), config.RequestTimeout(), config.MaxConcurrentEvents)

	server := relay.NewServer(config, rl, whatsapp.NewParser(), seen, store)
	err = server.Start()
	if err != nil {
		logger.Error("unable to start server", "error", err)
		os.Exit(1)
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("stopping", "signal", <-ch)

	server.Stop()

	// let events we've already acknowledged finish
	rl.Stop()
}
