package commands

import (
	"context"
	"os"

	"github.com/keanlouis/easely/internal/canvas"
	"github.com/keanlouis/easely/internal/config"
	"github.com/keanlouis/easely/internal/conversation"
	"github.com/keanlouis/easely/internal/dispatcher"
	"github.com/keanlouis/easely/internal/localtime"
	"github.com/keanlouis/easely/internal/notify"
	"github.com/keanlouis/easely/internal/printer"
	"github.com/keanlouis/easely/internal/scheduler"
	"github.com/keanlouis/easely/pkg/store"
	"github.com/redis/go-redis/v9"
)

// app holds every wired component a command can need. Commands pick the
// pieces they use; buildApp always constructs the full set so wiring errors
// surface at startup rather than mid-request.
type app struct {
	cfg        *config.EaselyConfig
	client     *store.Client
	engine     *localtime.Engine
	sched      *scheduler.Scheduler
	notifier   *notify.Messenger
	syncer     *canvas.Syncer
	conv       *conversation.Handler
	dispatcher *dispatcher.Dispatcher
}

func (a *app) Close() {
	a.client.Close()
}

// buildApp loads configuration, connects to Redis and assembles the
// component graph. The Canvas syncer is nil when no canvas section is
// configured; the conversation handler degrades gracefully without it.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error(
			"Failed to load configuration",
			err.Error(),
			[]string{"Check that the file exists and is valid YAML", "Pass a different path with --config"},
		)
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, printer.Error(
			"REDIS_URL not set",
			"Easely keeps all state in Redis and cannot start without it.",
			[]string{"Set REDIS_URL, e.g. export REDIS_URL=redis://localhost:6379"},
		)
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, printer.Error("Invalid REDIS_URL", err.Error(), nil)
	}

	instanceName := os.Getenv("EASELY_INSTANCE_NAME")
	if instanceName == "" {
		instanceName = "default"
	}

	client, err := store.NewClient(redisOpts, instanceName)
	if err != nil {
		return nil, printer.Error("Failed to create Redis client", err.Error(), nil)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.Error(
			"Redis not accessible",
			err.Error(),
			[]string{"Check that Redis is running and REDIS_URL points at it"},
		)
	}

	engine, err := localtime.NewEngine(cfg.Timezone, *cfg.Dialog.WeekIncludesToday)
	if err != nil {
		client.Close()
		return nil, printer.Error("Invalid timezone", err.Error(), []string{"Use an IANA zone name such as Asia/Manila"})
	}

	sched := scheduler.NewScheduler(client)

	var syncer *canvas.Syncer
	if cfg.Canvas != nil {
		syncer = canvas.NewSyncer(canvas.NewClient(cfg.Canvas.BaseURL), client, sched)
	}

	notifier := notify.NewMessenger(cfg.Webhook.PageAccessToken)

	// A typed nil in the interface would defeat the handler's nil check
	var convSyncer conversation.CanvasSyncer
	if syncer != nil {
		convSyncer = syncer
	}
	conv := conversation.NewHandler(client, engine, sched, convSyncer, conversation.Config{
		WeekDays:   cfg.Dialog.WeekDays,
		SessionTTL: cfg.Dialog.SessionTTL(),
	})

	disp := dispatcher.NewDispatcher(client, notifier, engine)
	disp.SetMaxRetries(cfg.Reminder.MaxRetries)

	return &app{
		cfg:        cfg,
		client:     client,
		engine:     engine,
		sched:      sched,
		notifier:   notifier,
		syncer:     syncer,
		conv:       conv,
		dispatcher: disp,
	}, nil
}
