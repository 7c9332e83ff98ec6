package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/modshield/modshield/automod"

	cli "github.com/urfave/cli/v2"
)

// Opens the engine against the configured stores, for one-off admin commands.
func openEngine(cctx *cli.Context) (*automod.Engine, func(), error) {
	logger, err := configLogger(cctx)
	if err != nil {
		return nil, nil, err
	}
	eng, store, err := NewEngine(Config{
		Logger:           logger,
		StoreURL:         storeURL(cctx),
		MaxDBConnections: cctx.Int("max-db-connections"),
		RedisURL:         cctx.String("redis-url"),
		MemcachedServers: cctx.StringSlice("memcached-servers"),
		Subreddit:        cctx.String("subreddit"),
		ModAPIHost:       cctx.String("mod-api-host"),
		ModAPIToken:      cctx.String("mod-api-token"),
		ModAPIRateLimit:  cctx.Float64("mod-api-rate-limit"),
		MessagesDir:      cctx.String("messages-dir"),
	})
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if c, ok := store.(io.Closer); ok {
			c.Close()
		}
	}
	return eng, closer, nil
}

func printJSON(cctx *cli.Context, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, string(b))
	return nil
}

var warningsCmd = &cli.Command{
	Name:      "warnings",
	Usage:     "show a user's warning history and ban level",
	ArgsUsage: "<username>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print JSON instead of a tree",
		},
	},
	Action: func(cctx *cli.Context) error {
		username := cctx.Args().First()
		if username == "" {
			return fmt.Errorf("need to provide username as an argument")
		}
		eng, closer, err := openEngine(cctx)
		if err != nil {
			return err
		}
		defer closer()
		summary, err := eng.WarningSummary(cctx.Context, username)
		if err != nil {
			return err
		}
		if cctx.Bool("json") {
			return printJSON(cctx, summary)
		}
		fmt.Fprint(cctx.App.Writer, prettyWarnings(summary))
		return nil
	},
}

var clearUserCmd = &cli.Command{
	Name:      "clear-user",
	Usage:     "forget a user's warnings, ban level, notification cooldown and flags",
	ArgsUsage: "<username>",
	Action: func(cctx *cli.Context) error {
		username := cctx.Args().First()
		if username == "" {
			return fmt.Errorf("need to provide username as an argument")
		}
		eng, closer, err := openEngine(cctx)
		if err != nil {
			return err
		}
		defer closer()
		if err := eng.ClearUserMemory(cctx.Context, username); err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "cleared memory for u/%s\n", username)
		return nil
	},
}

var clearAllCmd = &cli.Command{
	Name:  "clear-all",
	Usage: "reset settings and throttles (and optionally all per-user data)",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "confirm",
			Usage:    "must be exactly CONFIRM",
			Required: true,
		},
		&cli.BoolFlag{
			Name:  "include-user-data",
			Usage: "also delete warnings, cooldowns, processed and topic markers (store must support key listing)",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.String("confirm") != "CONFIRM" {
			return fmt.Errorf("refusing to clear memory: --confirm must be CONFIRM")
		}
		eng, closer, err := openEngine(cctx)
		if err != nil {
			return err
		}
		defer closer()
		n, err := eng.ClearAllMemory(cctx.Context, cctx.Bool("include-user-data"))
		if err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "deleted %d keys\n", n)
		return nil
	},
}

var statsCmd = &cli.Command{
	Name:  "stats",
	Usage: "show today's warning, ban, removal and auto-approval counts",
	Action: func(cctx *cli.Context) error {
		eng, closer, err := openEngine(cctx)
		if err != nil {
			return err
		}
		defer closer()
		stats, err := eng.Stats(cctx.Context)
		if err != nil {
			return err
		}
		return printJSON(cctx, stats)
	},
}
