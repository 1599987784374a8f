package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/ipaforge/ipaforge/internal/config"
	"github.com/ipaforge/ipaforge/internal/dispatch"
	"github.com/ipaforge/ipaforge/internal/flow"
	"github.com/ipaforge/ipaforge/internal/gate"
	"github.com/ipaforge/ipaforge/internal/handlers"
	"github.com/ipaforge/ipaforge/internal/ids"
	"github.com/ipaforge/ipaforge/internal/janitor"
	"github.com/ipaforge/ipaforge/internal/logger"
	"github.com/ipaforge/ipaforge/internal/payments"
	"github.com/ipaforge/ipaforge/internal/server"
	"github.com/ipaforge/ipaforge/internal/session"
	"github.com/ipaforge/ipaforge/internal/storage"
	"github.com/ipaforge/ipaforge/internal/telegram"
	"github.com/ipaforge/ipaforge/internal/version"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideIDs,
			provideRedis,
			provideSessionStore,
			provideBlobStore,
			provideTelegramClient,
			provideGate,
			provideDispatcher,
			provideMachine,
			providePaymentsClient,
			provideServer,
		),
		fx.Invoke(
			startJanitor,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideIDs() ids.Generator {
	return &ids.Crypto{}
}

func provideRedis(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
			return nil
		},
		OnStop: func(context.Context) error { return client.Close() },
	})
	return client
}

func provideSessionStore(log *slog.Logger, client *redis.Client) *session.RedisStore {
	return session.NewRedisStore(log, client)
}

func provideBlobStore(log *slog.Logger, cfg config.Config) (storage.BlobStore, error) {
	if !cfg.Storage.Enabled() {
		log.Warn("blob storage not configured, oversized packages will be forwarded as-is")
		return storage.NewDisabledStore(), nil
	}
	return storage.NewS3Store(context.Background(), log, storage.S3Options{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKeyID,
		SecretKey: cfg.Storage.SecretAccessKey,
		Bucket:    cfg.Storage.Bucket,
	})
}

func provideTelegramClient(log *slog.Logger, cfg config.Config, gen ids.Generator) (*telegram.Client, error) {
	return telegram.NewClient(log, cfg.Telegram.BotToken, gen)
}

func provideGate(log *slog.Logger, tg *telegram.Client, cfg config.Config) *gate.Gate {
	return gate.New(log, tg, cfg.Telegram.Channel(), cfg.Telegram.OwnerIDs)
}

func provideDispatcher(log *slog.Logger, tg *telegram.Client, blobs storage.BlobStore, cfg config.Config) *dispatch.Dispatcher {
	return dispatch.New(log, tg, blobs, cfg.Telegram.UploadLimitBytes())
}

func provideMachine(
	log *slog.Logger,
	store *session.RedisStore,
	blobs storage.BlobStore,
	tg *telegram.Client,
	d *dispatch.Dispatcher,
	gen ids.Generator,
	cfg config.Config,
) *flow.Machine {
	return flow.NewMachine(log, store, store, blobs, tg, d, gen, flow.Options{
		UploadLimit: cfg.Telegram.UploadLimitBytes(),
		BaseURL:     cfg.Server.BaseURL,
		LockTTL:     cfg.Telegram.LockTTL(),
		TokenTTL:    cfg.Telegram.TokenTTL(),
		SessionTTL:  cfg.Telegram.SessionTTL(),
	})
}

func providePaymentsClient(log *slog.Logger, cfg config.Config) *payments.Client {
	return payments.NewClient(log, cfg.Payments.APIURL, cfg.Payments.APIKey)
}

func provideServer(
	log *slog.Logger,
	cfg config.Config,
	machine *flow.Machine,
	g *gate.Gate,
	tg *telegram.Client,
	store *session.RedisStore,
	blobs storage.BlobStore,
	pay *payments.Client,
	gen ids.Generator,
) *server.Server {
	hs := []server.Handler{
		handlers.NewHomeHandler(),
		handlers.NewHealthHandler(log),
		handlers.NewWebhookHandler(log, machine, g, tg, cfg.Telegram.WebhookSecret),
		handlers.NewDownloadHandler(log, store, blobs, tg),
		handlers.NewThumbHandler(log, blobs),
	}
	if cfg.Payments.APIURL != "" {
		hs = append(hs, handlers.NewCheckoutHandler(log, pay, gen))
	}
	return server.New(log, cfg.Server.Addr, hs...)
}

func startJanitor(lc fx.Lifecycle, log *slog.Logger, blobs storage.BlobStore, cfg config.Config) {
	j := janitor.New(log, blobs, cfg.Janitor.Retention(), cfg.Janitor.Schedule)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return j.Start() },
		OnStop:  func(context.Context) error { j.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting IPA Forge %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
