package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/modshield/modshield/util/cliutil"

	"github.com/adrg/xdg"
	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "modshield",
		Usage:   "subreddit auto-moderation daemon (warnings, escalating bans, notices)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "store-url",
			Usage:   "record store: memory://, redis://..., bolt:///path, pebble:///dir, sqlite://path or postgres://... (default: bolt file in the XDG data dir)",
			EnvVars: []string{"MODSHIELD_STORE_URL", "DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MODSHIELD_MAX_DB_CONNECTIONS"},
			Value:   20,
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis for counters, caches and flags (in-process if not set)",
			EnvVars: []string{"MODSHIELD_REDIS_URL"},
		},
		&cli.StringSliceFlag{
			Name:    "memcached-servers",
			Usage:   "memcached servers for the user and author lookup cache (overrides redis for caching)",
			EnvVars: []string{"MODSHIELD_MEMCACHED_SERVERS"},
		},
		&cli.StringFlag{
			Name:    "subreddit",
			Usage:   "community being moderated",
			EnvVars: []string{"MODSHIELD_SUBREDDIT"},
		},
		&cli.StringFlag{
			Name:    "mod-api-host",
			Usage:   "method, hostname, and port of the moderation API bridge",
			Value:   "http://localhost:8300",
			EnvVars: []string{"MODSHIELD_MOD_API_HOST"},
		},
		&cli.StringFlag{
			Name:    "mod-api-token",
			Usage:   "bearer token for the moderation API bridge",
			EnvVars: []string{"MODSHIELD_MOD_API_TOKEN"},
		},
		&cli.Float64Flag{
			Name:    "mod-api-rate-limit",
			Usage:   "max requests per second to the moderation API",
			Value:   10,
			EnvVars: []string{"MODSHIELD_MOD_API_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "messages-dir",
			Usage:   "directory of message template overrides",
			EnvVars: []string{"MODSHIELD_MESSAGES_DIR"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"MODSHIELD_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: json or text",
			EnvVars: []string{"MODSHIELD_LOG_FMT"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		warningsCmd,
		clearUserCmd,
		clearAllCmd,
		statsCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel:  cctx.String("log-level"),
		LogFormat: cctx.String("log-format"),
	})
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the webhook service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3999",
			EnvVars: []string{"MODSHIELD_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"MODSHIELD_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "webhook-secret",
			Usage:   "bearer token required on event and admin endpoints",
			EnvVars: []string{"MODSHIELD_WEBHOOK_SECRET"},
		},
		&cli.StringFlag{
			Name:    "blacklist-file",
			Usage:   "JSON sets file used to seed the blacklist when none is stored",
			EnvVars: []string{"MODSHIELD_BLACKLIST_FILE"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "topic-word",
			Usage:   "flair word which triggers the pinned topic notice",
			Value:   "rumor",
			EnvVars: []string{"MODSHIELD_TOPIC_WORD"},
		},
		&cli.StringFlag{
			Name:    "blacklist-match",
			Usage:   "how blacklisted terms match content: substring, tokens, or squashed",
			Value:   "substring",
			EnvVars: []string{"MODSHIELD_BLACKLIST_MATCH"},
		},
		&cli.IntFlag{
			Name:    "retention-days",
			Usage:   "days a warning counts as active",
			Value:   90,
			EnvVars: []string{"MODSHIELD_RETENTION_DAYS"},
		},
		&cli.IntFlag{
			Name:    "notification-cooldown-days",
			Usage:   "minimum days between restoration notices to the same user",
			Value:   5,
			EnvVars: []string{"MODSHIELD_NOTIFICATION_COOLDOWN_DAYS"},
		},
		&cli.IntFlag{
			Name:    "auto-approval-interval-days",
			Usage:   "minimum days between automatic re-approvals",
			Value:   5,
			EnvVars: []string{"MODSHIELD_AUTO_APPROVAL_INTERVAL_DAYS"},
		},
		&cli.IntFlag{
			Name:    "quota-ban-day",
			Usage:   "max bans per day before the circuit breaker trips",
			Value:   50,
			EnvVars: []string{"MODSHIELD_QUOTA_BAN_DAY"},
		},
		&cli.IntFlag{
			Name:    "quota-auto-approval-day",
			Usage:   "max automatic re-approvals per day",
			Value:   20,
			EnvVars: []string{"MODSHIELD_QUOTA_AUTO_APPROVAL_DAY"},
		},
		&cli.DurationFlag{
			Name:    "sweep-interval",
			Usage:   "how often expired records are removed from a bolt or pebble store",
			Value:   time.Hour,
			EnvVars: []string{"MODSHIELD_SWEEP_INTERVAL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}

		shutdownTracing := configOTEL("modshield")
		defer shutdownTracing()

		srv, err := NewServer(Config{
			Logger:               logger,
			StoreURL:             storeURL(cctx),
			MaxDBConnections:     cctx.Int("max-db-connections"),
			RedisURL:             cctx.String("redis-url"),
			MemcachedServers:     cctx.StringSlice("memcached-servers"),
			Subreddit:            cctx.String("subreddit"),
			ModAPIHost:           cctx.String("mod-api-host"),
			ModAPIToken:          cctx.String("mod-api-token"),
			ModAPIRateLimit:      cctx.Float64("mod-api-rate-limit"),
			MessagesDir:          cctx.String("messages-dir"),
			SlackWebhookURL:      cctx.String("slack-webhook-url"),
			WebhookSecret:        cctx.String("webhook-secret"),
			BlacklistFile:        cctx.String("blacklist-file"),
			TopicWord:            cctx.String("topic-word"),
			BlacklistMatch:       cctx.String("blacklist-match"),
			Bind:                 cctx.String("bind"),
			Retention:            time.Duration(cctx.Int("retention-days")) * 24 * time.Hour,
			NotificationCooldown: time.Duration(cctx.Int("notification-cooldown-days")) * 24 * time.Hour,
			AutoApprovalInterval: time.Duration(cctx.Int("auto-approval-interval-days")) * 24 * time.Hour,
			QuotaBanDay:          cctx.Int("quota-ban-day"),
			QuotaAutoApprovalDay: cctx.Int("quota-auto-approval-day"),
			SweepInterval:        cctx.Duration("sweep-interval"),
		})
		if err != nil {
			return err
		}
		defer srv.Close()

		ctx, cancel := context.WithCancel(cctx.Context)
		defer cancel()

		if err := srv.SeedBlacklist(ctx); err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		eg, ctx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			return srv.RunSweeper(ctx)
		})
		eg.Go(func() error {
			defer cancel()
			if err := srv.RunAPI(); err != nil {
				return fmt.Errorf("failed to run modshield service: %w", err)
			}
			return nil
		})
		return eg.Wait()
	},
}

// Falls back to a bolt database under $XDG_DATA_HOME when no store is configured.
func storeURL(cctx *cli.Context) string {
	if u := cctx.String("store-url"); u != "" {
		return u
	}
	fPath, err := xdg.DataFile("modshield/modshield.db")
	if err != nil {
		slog.Warn("could not resolve XDG data dir, using in-memory store", "err", err)
		return "memory://"
	}
	return "bolt://" + fPath
}
