// Command pktbuf-soak builds a packet pool from a JSON config and flags, then
// hammers it from simulated task and interrupt contexts, reporting any
// ownership or accounting violation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/momentics/pktbuf/api"
	"github.com/momentics/pktbuf/control"
	"github.com/momentics/pktbuf/internal/soak"
	"github.com/momentics/pktbuf/pool"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ec, ok := err.(cli.ExitCoder); ok {
			os.Exit(ec.ExitCode())
		}
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "pktbuf-soak"
	app.Usage = "stress a fixed-capacity packet buffer pool from task and ISR contexts"
	app.Writer = out
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "JSON pool config `FILE`"},
		cli.IntFlag{Name: "count", Usage: "number of buffers (overrides config)"},
		cli.IntFlag{Name: "data-size", Usage: "payload bytes per buffer (overrides config)"},
		cli.StringFlag{Name: "registry", Usage: "free registry: stack or queue (overrides config)"},
		cli.BoolFlag{Name: "strict", Usage: "panic on handle misuse"},
		cli.IntFlag{Name: "iterations", Value: 100000, Usage: "steps per worker"},
		cli.IntFlag{Name: "task-workers", Value: 1, Usage: "task-context goroutines"},
		cli.IntFlag{Name: "isr-workers", Value: 1, Usage: "interrupt-context goroutines"},
		cli.IntFlag{Name: "hold", Value: 2, Usage: "buffers each worker keeps before releasing"},
		cli.Int64Flag{Name: "seed", Value: 1, Usage: "random seed"},
		cli.DurationFlag{Name: "timeout", Usage: "stop after this long (0 = no limit)"},
		cli.BoolFlag{Name: "json", Usage: "print the report as JSON"},
		cli.BoolFlag{Name: "verbose, v", Usage: "trace logging"},
	}
	app.Action = runSoak
	return app
}

func loadConfig(c *cli.Context) (*control.ConfigStore, error) {
	cfg := control.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = control.LoadConfigFile(path); err != nil {
			return nil, err
		}
	}

	store := control.NewConfigStore(cfg)
	err := store.Update(func(cfg *control.Config) {
		if c.IsSet("count") {
			cfg.Count = c.Int("count")
		}
		if c.IsSet("data-size") {
			cfg.DataSize = c.Int("data-size")
		}
		if c.IsSet("registry") {
			cfg.Registry = strings.ToLower(c.String("registry"))
		}
		if c.Bool("strict") {
			cfg.Strict = true
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "invalid flags")
	}
	return store, nil
}

func runSoak(c *cli.Context) error {
	store, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg := store.Get()

	api.SetLogLevel(cfg.Level())
	if c.Bool("verbose") {
		api.SetLogLevelMax()
	}

	p, err := pool.New(cfg.PoolConfig(), cfg.PoolOptions()...)
	if err != nil {
		return err
	}
	store.Freeze()

	probes := control.NewDebugProbes()
	control.RegisterPoolProbe(probes, "pool", p)
	probes.RegisterProbe("config", func() any { return store.GetSnapshot() })

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if d := c.Duration("timeout"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	rep, err := soak.Run(ctx, p, soak.Params{
		Iterations:  c.Int("iterations"),
		TaskWorkers: c.Int("task-workers"),
		ISRWorkers:  c.Int("isr-workers"),
		Hold:        c.Int("hold"),
		Seed:        c.Int64("seed"),
	})
	if err != nil && ctx.Err() == nil {
		return err
	}

	metrics := control.NewMetricsRegistry()
	metrics.Publish("pktbuf", p)

	if c.Bool("json") {
		if err := writeJSON(c.App.Writer, rep, metrics, probes); err != nil {
			return err
		}
	} else {
		writeText(c.App.Writer, rep, ctx.Err() != nil)
	}

	if !rep.OK() {
		return cli.NewExitError(fmt.Sprintf("soak failed: %d violations, %d errors", rep.Violations, rep.Errors), 2)
	}
	return nil
}

type jsonReport struct {
	Report  soak.Report       `json:"report"`
	Metrics map[string]uint64 `json:"metrics"`
	Debug   map[string]any    `json:"debug"`
}

func writeJSON(w io.Writer, rep soak.Report, mr *control.MetricsRegistry, dp *control.DebugProbes) error {
	out, err := jsoniter.MarshalIndent(jsonReport{
		Report:  rep,
		Metrics: mr.GetSnapshot(),
		Debug:   dp.DumpState(),
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "can't encode report")
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func writeText(w io.Writer, rep soak.Report, interrupted bool) {
	st := rep.Stats
	fmt.Fprintf(w, "pool: %d buffers x %d bytes\n", st.Capacity, st.DataSize)
	fmt.Fprintf(w, "ops: get %d, get_isr %d, free %d, free_isr %d, clone %d, refc_inc %d\n",
		rep.Gets, rep.GetsISR, rep.Frees, rep.FreesISR, rep.Clones, rep.RefIncs)
	fmt.Fprintf(w, "exhausted: %d, high water: %d, remaining range: [%d, %d]\n",
		rep.Exhausted, st.HighWater, rep.MinRemaining, rep.MaxRemaining)
	fmt.Fprintf(w, "violations: %d, errors: %d, elapsed: %v\n",
		rep.Violations, rep.Errors, rep.Elapsed.Round(time.Microsecond))
	if interrupted {
		fmt.Fprintln(w, "run stopped early")
	}
}
