package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"amega-vpn-bot/config"
	"amega-vpn-bot/internal/admin"
	"amega-vpn-bot/internal/bot"
	"amega-vpn-bot/internal/db"
	"amega-vpn-bot/internal/logger"
	"amega-vpn-bot/internal/metrics"
	"amega-vpn-bot/internal/server"
	"amega-vpn-bot/internal/services"
	"amega-vpn-bot/internal/xui"

	"github.com/gofrs/flock"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runBot starts one bot process and blocks until SIGINT/SIGTERM.
func runBot(ctx context.Context, role config.Role) error {
	cfg, err := config.Load(role)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("role", string(role)))

	lock := flock.New(filepath.Join(cfg.LockDir, "amegavpn-"+string(role)+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another %s bot is already running (lock %s)", role, lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	defer sqlDB.Close()
	store := db.NewGormStore(gdb)

	var states bot.StateStore = bot.NewMemoryStateStore()
	if cfg.RedisURL != "" {
		rs, err := bot.NewRedisStateStore(ctx, cfg.RedisURL, string(role))
		if err != nil {
			return err
		}
		defer rs.Close()
		states = rs
	}

	userAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("user bot: %w", err)
	}
	adminAPI, err := tgbotapi.NewBotAPI(cfg.AdminBotToken)
	if err != nil {
		return fmt.Errorf("admin bot: %w", err)
	}

	alert := logger.NewAlerter(adminAPI, cfg.AdminID, log)
	notifier := bot.NewUserNotifier(userAPI, cfg.SupportURL)
	alloc := services.NewAllocator(store, time.Now, log)
	workflow := services.NewWorkflow(store, alloc, notifier, alert, time.Now, log)
	guard := admin.Guard{AdminID: cfg.AdminID}

	xuiCfg := xui.Config{
		Host:        cfg.XUI.Host,
		Port:        cfg.XUI.Port,
		Prefix:      cfg.XUI.Prefix,
		Token:       cfg.XUI.Token,
		Username:    cfg.XUI.Username,
		Password:    cfg.XUI.Password,
		InsecureTLS: cfg.XUI.InsecureTLS,
	}

	deps := bot.Deps{
		Role:         bot.Role(role),
		Guard:        guard,
		Store:        store,
		Workflow:     workflow,
		Entitlements: services.NewEntitlementCalculator(store, time.Now),
		States:       states,
		Alert:        alert,
		Log:          log,
	}

	sched := cron.New()
	api := userAPI
	switch role {
	case config.RoleUser:
		deps.Bot = userAPI
		deps.AdminBot = adminAPI
		deps.Limiter = bot.NewRateLimiter(guard.IsAdmin)
		deps.ReceiptsDir = cfg.ReceiptsDir
		deps.SupportURL = cfg.SupportURL
		deps.PriceRUB = cfg.PriceRUB
		if xuiCfg.Enabled() {
			deps.Panel = xui.New(xuiCfg, log)
		}

		reminder := services.NewReminder(store, notifier, alert, time.Now, log)
		if _, err := sched.AddFunc(cfg.ReminderCron, func() {
			defer alert.Recover("reminder sweep")
			res, err := reminder.Sweep(ctx)
			if err != nil {
				log.Error("reminder sweep", zap.String("run_id", res.RunID), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("REMINDER_CRON: %w", err)
		}
	case config.RoleAdmin:
		api = adminAPI
		deps.Bot = adminAPI
		deps.Loader = services.NewKeyLoader(store, log)
		deps.Backups = admin.NewBackuper(cfg.DatabaseURL, cfg.BackupDir, admin.PgDump, alert, log)

		var pinger services.Pinger
		if xuiCfg.Enabled() {
			pinger = xui.New(xuiCfg, log)
		}
		deps.Monitor = services.NewPanelMonitor(pinger, alert, time.Now, log)
		if _, err := sched.AddFunc("@every 1m", func() {
			defer alert.Recover("panel probe")
			deps.Monitor.Check(ctx)
		}); err != nil {
			return err
		}
		if _, err := sched.AddFunc(cfg.BackupCron, func() {
			defer alert.Recover("auto backup")
			deps.Backups.Auto(ctx)
		}); err != nil {
			return fmt.Errorf("BACKUP_CRON: %w", err)
		}
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	metrics.MustRegister()
	controller := bot.NewController(deps)
	srv := server.New(cfg.HTTPAddr, string(role), sqlDB.PingContext, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(gctx, api, controller, log)
	})
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		<-sched.Stop().Done()
		return nil
	})

	log.Info("bot started")
	err = g.Wait()
	log.Info("bot stopped", zap.Error(err))
	return err
}
