package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trickstertwo/alog"
	"github.com/trickstertwo/alog/config"
	"github.com/trickstertwo/alog/subscriber/collector"
	"github.com/trickstertwo/alog/subscriber/multi"
	slogsubscriber "github.com/trickstertwo/alog/subscriber/slog"
	zapsubscriber "github.com/trickstertwo/alog/subscriber/zap"
	zerologsubscriber "github.com/trickstertwo/alog/subscriber/zerolog"
)

var (
	commandDemoFlagCallers   int
	commandDemoFlagRecords   int
	commandDemoFlagSink      string
	commandDemoFlagCollector string
)

var commandDemo = &cobra.Command{
	Use:   "demo",
	Short: "Run concurrent callers against a configured logger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return demo(cmd.Context())
	},
}

func init() {
	commandDemo.Flags().IntVarP(&commandDemoFlagCallers, "callers", "n", 4, "concurrent callers")
	commandDemo.Flags().IntVarP(&commandDemoFlagRecords, "records", "m", 10, "records per caller")
	commandDemo.Flags().StringVar(&commandDemoFlagSink, "sink", "console", "subscriber: console, zap, zerolog, slog")
	commandDemo.Flags().StringVar(&commandDemoFlagCollector, "collector", "", "also ship records to this collector base URL")
	mainCommand.AddCommand(commandDemo)
}

func demo(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	diag, err := zap.NewDevelopment()
	if err != nil {
		return errors.Wrap(err, "diagnostics logger")
	}
	defer diag.Sync()

	sub, err := demoSubscriber(cfg)
	if err != nil {
		return err
	}
	sys := alog.NewSystem(alog.Options{
		Diagnostics: diag,
		Observers: []alog.Observer{alog.ObserverFunc(func(e alog.LifecycleEvent) {
			diag.Debug("lifecycle", zap.String("name", e.Name), zap.Stringer("kind", e.Kind), zap.Error(e.Err))
		})},
	})
	if err := cfg.Apply(sys.NewBuilder()).WithSubscriber(sub).Init(); err != nil {
		return errors.Wrap(err, "init logger")
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < commandDemoFlagCallers; i++ {
		g.Go(func() error {
			c := sys.CallerFor(cfg.Logger.Name, "demo.worker").With(alog.Int("worker", i))
			c.Debug().Msg("worker started")
			for j := 0; j < commandDemoFlagRecords; j++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				c.Info().Int("seq", j).Dur("elapsed", time.Duration(j)*time.Millisecond).Msg("tick")
			}
			c.Warn().Msg("worker done")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if stats, err := sys.Stats(stopCtx, cfg.Logger.Name); err == nil {
		for i, st := range stats {
			diag.Info("actor stats",
				zap.Int("member", i),
				zap.Uint64("received", st.Received),
				zap.Uint64("written", st.Written),
				zap.Uint64("filtered", st.Filtered),
				zap.Uint64("dropped", st.Dropped))
		}
	}
	return sys.Shutdown(stopCtx)
}

func demoSubscriber(cfg *config.Config) (alog.Subscriber, error) {
	var sub alog.Subscriber
	w := cfg.Output.Writer()
	switch commandDemoFlagSink {
	case "console":
		sub = cfg.Subscriber()
	case "zap":
		zs, err := zapsubscriber.NewFromConfig(zapsubscriber.Config{Writer: w, Filter: cfg.LevelFilter(), Console: cfg.Output.Format == "pretty"})
		if err != nil {
			return nil, err
		}
		sub = zs
	case "zerolog":
		sub = zerologsubscriber.NewFromConfig(zerologsubscriber.Config{Writer: w, Filter: cfg.LevelFilter(), Console: cfg.Output.Format == "pretty", NoColor: !cfg.Output.Color})
	case "slog":
		sub = slogsubscriber.NewJSON(w, cfg.LevelFilter(), nil)
	default:
		return nil, errors.Errorf("unknown sink %q", commandDemoFlagSink)
	}
	if commandDemoFlagCollector == "" {
		return sub, nil
	}
	coll, err := collector.New(collector.Config{
		URL:     commandDemoFlagCollector,
		Service: "alog-demo",
		Filter:  cfg.LevelFilter(),
	})
	if err != nil {
		return nil, err
	}
	every := cfg.Logger.FlushInterval
	if every <= 0 {
		every = time.Second
	}
	return multi.NewWithOptions(alog.SpawnOptions{FlushInterval: every}, sub, coll), nil
}
