package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zen-systems/modelgate/pkg/adapter"
	"github.com/zen-systems/modelgate/pkg/complexity"
	"github.com/zen-systems/modelgate/pkg/config"
	"github.com/zen-systems/modelgate/pkg/dispatch"
	"github.com/zen-systems/modelgate/pkg/metrics"
	"github.com/zen-systems/modelgate/pkg/provider"
	"github.com/zen-systems/modelgate/pkg/router"
	"github.com/zen-systems/modelgate/pkg/server"
	"github.com/zen-systems/modelgate/pkg/tracker"
	"github.com/zen-systems/modelgate/pkg/validate"
)

var offlineFlag bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "modelgate",
		Short: "Intelligent model gateway with complexity-based routing",
		Long: `Modelgate accepts natural-language queries, estimates their
computational complexity, and dispatches each one to the cheapest adequate
backend with budgeting, fallback, and live performance feedback.`,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(providersCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)

			registry, err := provider.NewRegistry(cfg.Providers)
			if err != nil {
				return err
			}

			adapters, err := buildAdapters(cfg, registry)
			if err != nil {
				return err
			}

			tr := tracker.NewTracker(registry)
			rt := router.NewRouter(registry, tr, router.WithThresholds(cfg.ThresholdLo, cfg.ThresholdHi))
			collector := metrics.NewCollector(cfg.Thresholds, metrics.WithSampler(metrics.NewSampler()))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			collector.Start(ctx)
			defer collector.Stop()

			d := dispatch.NewDispatcher(dispatch.Config{
				Validator: validate.NewValidator(),
				Evaluator: complexity.NewEvaluator(),
				Router:    rt,
				Tracker:   tr,
				Collector: collector,
				Adapters:  adapters,
			})

			srv := server.NewServer(d, complexity.NewEvaluator(), registry, tr, collector)
			httpServer := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Port),
				Handler: srv.Router(),
			}

			go func() {
				<-ctx.Done()
				log.Info().Msg("shutting down")
				_ = httpServer.Shutdown(context.Background())
			}()

			log.Info().Int("port", cfg.Port).Int("providers", len(cfg.Providers)).Msg("modelgate listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offlineFlag, "offline", false, "use mock adapters for every provider")
	return cmd
}

func evaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate [query]",
		Short: "Score a query's complexity without dispatching it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := complexity.NewEvaluator().Evaluate(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("score: %.4f\n", result.Score)
			for _, f := range result.Factors {
				fmt.Printf("factor: %s\n", f)
			}
			return nil
		},
	}
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the configured provider fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADAPTER\tMODEL\tTYPES\tMAX_CONCURRENT\tBASE_COST")
			for _, d := range cfg.Providers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%d\t%.4f\n",
					d.Name, d.Adapter, d.Model, d.SupportedTypes, d.MaxConcurrent, d.BaseCost)
			}
			return w.Flush()
		},
	}
}

// buildAdapters constructs an adapter for every adapter name the fleet
// references. Missing credentials fail fast rather than at dispatch time.
func buildAdapters(cfg *config.Config, registry *provider.Registry) (map[string]adapter.Adapter, error) {
	needed := make(map[string]struct{})
	for _, d := range registry.List() {
		needed[d.Adapter] = struct{}{}
	}

	adapters := make(map[string]adapter.Adapter, len(needed))
	for name := range needed {
		if offlineFlag {
			adapters[name] = adapter.NewMockAdapter(name)
			continue
		}
		switch name {
		case "anthropic":
			a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
			if err != nil {
				return nil, err
			}
			adapters[name] = a
		case "openai":
			a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
			if err != nil {
				return nil, err
			}
			adapters[name] = a
		case "google":
			a, err := adapter.NewGoogleAdapter(cfg.GoogleAPIKey)
			if err != nil {
				return nil, err
			}
			adapters[name] = a
		case "local":
			adapters[name] = adapter.NewLocalAdapter(cfg.LocalURL, nil)
		case "mock":
			adapters[name] = adapter.NewMockAdapter(name)
		default:
			return nil, fmt.Errorf("unknown adapter %q in provider fleet", name)
		}
	}
	return adapters, nil
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
