package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-go-golems/tessa/cmd/tessa/cmds"
	"github.com/go-go-golems/tessa/pkg/inference/toolloop"
	"github.com/go-go-golems/tessa/pkg/inference/tools"
	"github.com/go-go-golems/tessa/pkg/steps/ai/settings"
	"github.com/go-go-golems/tessa/pkg/travel/amadeus"
	"github.com/go-go-golems/tessa/pkg/travel/geocode"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "tessa",
	Short: "tessa is a travel assistant that searches flights and hotels",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		initLogger()
	},
	SilenceUsage: true,
}

func initLogger() {
	logLevel := viper.GetString("log-level")
	verbose := viper.GetBool("verbose")
	if verbose && logLevel != "trace" {
		logLevel = "debug"
	}

	err := InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
	cobra.CheckErr(err)
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initConfig(rootCmd *cobra.Command, configPath string) error {
	// credentials usually live in a .env next to the binary
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env")
	}

	viper.SetEnvPrefix("tessa")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.tessa")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/tessa")
		}
	}

	err := viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Config file not found; ignore error
	} else if err != nil {
		return err
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for key, env := range map[string]string{
		"gemini-api-key":        "GEMINI_API_KEY",
		"amadeus-client-id":     "AMADEUS_CLIENT_ID",
		"amadeus-client-secret": "AMADEUS_CLIENT_SECRET",
	} {
		if err := viper.BindEnv(key, "TESSA_"+env, env); err != nil {
			return err
		}
	}

	err = viper.BindPFlags(rootCmd.PersistentFlags())
	if err != nil {
		return err
	}

	initLogger()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}
	var logWriter io.Writer
	if config.LogFormat == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, //days
					Compress:   false,
				},
			})
	}

	log.Logger = log.Output(logWriter)

	switch config.Level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// logging flags
	rootCmd.PersistentFlags().Bool("with-caller", false, "Log caller")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file (default: stderr)")

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.tessa/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Print loop states and tool calls")
	rootCmd.PersistentFlags().Bool("dump-events", false, "Print every raw event as JSON on stderr")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve prometheus metrics on this address (e.g. :9090)")

	// model flags
	rootCmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key")
	rootCmd.PersistentFlags().String("base-url", settings.DefaultBaseURL, "OpenAI-compatible endpoint")
	rootCmd.PersistentFlags().String("model", settings.DefaultModel, "Model used by worker and supervisor")
	rootCmd.PersistentFlags().Float64("worker-temperature", settings.DefaultWorkerTemperature, "Worker sampling temperature")
	rootCmd.PersistentFlags().Float64("supervisor-temperature", settings.DefaultSupervisorTemperature, "Supervisor sampling temperature")
	rootCmd.PersistentFlags().Duration("model-timeout", toolloop.DefaultLoopConfig().ModelTimeout, "Timeout for a single model call")
	rootCmd.PersistentFlags().String("worker-prompt", "", "Worker system prompt template (default built in)")
	rootCmd.PersistentFlags().String("supervisor-prompt", "", "Supervisor system prompt template (default built in)")

	// tool flags
	rootCmd.PersistentFlags().Duration("tool-timeout", tools.DefaultToolConfig().ExecutionTimeout, "Timeout for a single tool call")
	rootCmd.PersistentFlags().Int("max-parallel-tools", tools.DefaultToolConfig().MaxParallelTools, "Maximum tool calls run concurrently")
	rootCmd.PersistentFlags().String("tool-choice", string(tools.DefaultToolConfig().ToolChoice), "Worker tool choice (auto, none, required)")
	rootCmd.PersistentFlags().StringSlice("allowed-tools", nil, "Only offer these tools to the worker (default all)")
	rootCmd.PersistentFlags().Duration("client-timeout", 60*time.Second, "HTTP timeout for model requests")

	// search flags
	rootCmd.PersistentFlags().String("amadeus-client-id", "", "Amadeus API client id")
	rootCmd.PersistentFlags().String("amadeus-client-secret", "", "Amadeus API client secret")
	rootCmd.PersistentFlags().String("amadeus-base-url", amadeus.DefaultBaseURL, "Amadeus API base URL")
	rootCmd.PersistentFlags().String("geocoder-base-url", geocode.DefaultBaseURL, "Nominatim base URL")
	rootCmd.PersistentFlags().String("geocoder-user-agent", geocode.DefaultUserAgent, "User-Agent sent to Nominatim")
	rootCmd.PersistentFlags().Bool("allow-http-endpoints", false, "Allow plain http endpoint URLs")
	rootCmd.PersistentFlags().Bool("allow-local-endpoints", false, "Allow endpoint URLs on localhost and private networks")

	// parse the flags one time just to catch --config
	configFile := ""
	for idx, arg := range os.Args {
		if arg == "--config" {
			if len(os.Args) > idx+1 {
				configFile = os.Args[idx+1]
			}
		}
	}

	err := initConfig(rootCmd, configFile)
	if err != nil {
		panic(err)
	}

	rootCmd.AddCommand(cmds.NewAskCommand())
	rootCmd.AddCommand(cmds.NewChatCommand())

	toolsCmd, err := cmds.NewToolsCobraCommand()
	cobra.CheckErr(err)
	rootCmd.AddCommand(toolsCmd)
}
