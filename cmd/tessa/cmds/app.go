package cmds

import (
	"context"
	"os"
	"time"

	"github.com/go-go-golems/tessa/pkg/events"
	"github.com/go-go-golems/tessa/pkg/helpers"
	"github.com/go-go-golems/tessa/pkg/inference/toolloop"
	"github.com/go-go-golems/tessa/pkg/inference/tools"
	"github.com/go-go-golems/tessa/pkg/metrics"
	"github.com/go-go-golems/tessa/pkg/security"
	"github.com/go-go-golems/tessa/pkg/steps/ai/openai"
	"github.com/go-go-golems/tessa/pkg/steps/ai/settings"
	"github.com/go-go-golems/tessa/pkg/travel"
	"github.com/go-go-golems/tessa/pkg/travel/amadeus"
	"github.com/go-go-golems/tessa/pkg/travel/geocode"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const eventTopic = "tessa"

// App holds everything a command needs to run turns.
type App struct {
	Registry *tools.InMemoryToolRegistry
	Loop     *toolloop.Loop

	verbose     bool
	dumpEvents  bool
	metricsAddr string
}

// NewRegistry builds the travel tool registry. The search provider is only
// wired when Amadeus credentials are configured.
func NewRegistry(ctx context.Context, v *viper.Viper) (*tools.InMemoryToolRegistry, error) {
	if err := security.ValidateEndpoints(map[string]string{
		"amadeus-base-url":  v.GetString("amadeus-base-url"),
		"geocoder-base-url": v.GetString("geocoder-base-url"),
	}, endpointPolicy(v)); err != nil {
		return nil, err
	}

	var provider travel.Provider
	client, err := amadeus.NewClient(ctx, amadeus.Config{
		ClientID:     v.GetString("amadeus-client-id"),
		ClientSecret: v.GetString("amadeus-client-secret"),
		BaseURL:      v.GetString("amadeus-base-url"),
	})
	switch {
	case errors.Is(err, amadeus.ErrMissingCredentials):
		log.Warn().Msg("amadeus credentials missing, searches will report an uninitialized client")
	case err != nil:
		return nil, err
	default:
		provider = client
	}

	geocoder := geocode.NewNominatim(
		geocode.WithBaseURL(v.GetString("geocoder-base-url")),
		geocode.WithUserAgent(v.GetString("geocoder-user-agent")),
	)

	registry := tools.NewInMemoryToolRegistry()
	if err := travel.RegisterTools(registry, travel.NewGateway(provider, geocoder), time.Now); err != nil {
		return nil, err
	}
	return registry, nil
}

func endpointPolicy(v *viper.Viper) security.EndpointPolicy {
	return security.EndpointPolicy{
		AllowHTTP:          v.GetBool("allow-http-endpoints"),
		AllowLocalNetworks: v.GetBool("allow-local-endpoints"),
	}
}

// toolConfigFromViper reads the tool keys. Every allowed tool must be
// registered.
func toolConfigFromViper(v *viper.Viper, registry tools.Registry) (tools.ToolConfig, error) {
	toolCfg := tools.DefaultToolConfig()
	if v.IsSet("tool-timeout") {
		toolCfg = toolCfg.WithExecutionTimeout(v.GetDuration("tool-timeout"))
	}
	if v.IsSet("max-parallel-tools") {
		toolCfg = toolCfg.WithMaxParallelTools(v.GetInt("max-parallel-tools"))
	}
	choice, err := tools.ParseToolChoice(v.GetString("tool-choice"))
	if err != nil {
		return tools.ToolConfig{}, err
	}
	toolCfg = toolCfg.WithToolChoice(choice)
	if allowed := v.GetStringSlice("allowed-tools"); len(allowed) > 0 {
		for _, name := range allowed {
			if _, err := registry.GetTool(name); err != nil {
				return tools.ToolConfig{}, errors.Wrap(err, "allowed-tools")
			}
		}
		toolCfg = toolCfg.WithAllowedTools(allowed)
	}
	return toolCfg, nil
}

func NewApp(ctx context.Context, v *viper.Viper) (*App, error) {
	registry, err := NewRegistry(ctx, v)
	if err != nil {
		return nil, err
	}

	toolCfg, err := toolConfigFromViper(v, registry)
	if err != nil {
		return nil, err
	}

	loopCfg := toolloop.DefaultLoopConfig().
		WithWorkerPrompt(v.GetString("worker-prompt")).
		WithSupervisorPrompt(v.GetString("supervisor-prompt"))
	if v.IsSet("model-timeout") {
		loopCfg = loopCfg.WithModelTimeout(v.GetDuration("model-timeout"))
	}

	clientSettings := settings.ClientSettingsFromViper(v)
	if clientSettings.APIKey == "" {
		return nil, errors.New("no gemini api key configured (set GEMINI_API_KEY or --gemini-api-key)")
	}
	if err := security.ValidateEndpoint("base-url", clientSettings.BaseURL, endpointPolicy(v)); err != nil {
		return nil, err
	}

	worker, err := openai.NewOpenAIEngine(
		clientSettings,
		settings.ChatSettingsFromViper(v, "worker-temperature", settings.DefaultWorkerTemperature),
		openai.WithTools(toolCfg.FilterTools(registry.ListTools())...),
		openai.WithToolConfig(toolCfg),
	)
	if err != nil {
		return nil, errors.Wrap(err, "worker model")
	}
	supervisor, err := openai.NewOpenAIEngine(
		clientSettings,
		settings.ChatSettingsFromViper(v, "supervisor-temperature", settings.DefaultSupervisorTemperature),
	)
	if err != nil {
		return nil, errors.Wrap(err, "supervisor model")
	}

	loop := toolloop.New(
		toolloop.WithWorker(worker),
		toolloop.WithSupervisor(supervisor),
		toolloop.WithRegistry(registry),
		toolloop.WithToolConfig(toolCfg),
		toolloop.WithLoopConfig(loopCfg),
	)

	return &App{
		Registry:    registry,
		Loop:        loop,
		verbose:     v.GetBool("verbose"),
		dumpEvents:  v.GetBool("dump-events"),
		metricsAddr: v.GetString("metrics-addr"),
	}, nil
}

// Run calls fn with a context carrying the event sinks, alongside the event
// router and the metrics server when they are enabled.
func (a *App) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	if a.metricsAddr != "" {
		eg.Go(func() error {
			return metrics.Serve(ctx, a.metricsAddr)
		})
	}

	if !a.verbose && !a.dumpEvents {
		eg.Go(func() error {
			defer cancel()
			return fn(ctx)
		})
		return eg.Wait()
	}

	router, err := events.NewEventRouter(
		events.WithLogger(helpers.NewWatermill(log.Logger)),
		events.WithVerbose(a.verbose),
		events.WithOutput(os.Stderr),
	)
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()
	if a.verbose {
		router.AddHandler("step-printer", eventTopic, events.StepPrinterFunc("tessa", os.Stderr))
	}
	if a.dumpEvents {
		router.AddHandler("raw-events", eventTopic, router.DumpRawEvents)
	}

	eg.Go(func() error {
		defer cancel()
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		select {
		case <-router.Running():
		case <-ctx.Done():
			return ctx.Err()
		}
		return fn(events.WithEventSinks(ctx, router.NewSink(eventTopic)))
	})

	return eg.Wait()
}
