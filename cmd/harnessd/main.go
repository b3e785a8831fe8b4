// Command harnessd serves configured agents over the task protocol HTTP
// surface. Configuration is layered: defaults, then a YAML config file, then
// environment variables (HARNESS_ prefix), then flags.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/agentharness/agentharness"
	"github.com/agentharness/agentharness/agent"
	"github.com/agentharness/agentharness/engine"
	"github.com/agentharness/agentharness/engine/anthropic"
	"github.com/agentharness/agentharness/engine/openai"
	"github.com/agentharness/agentharness/logging"
	"github.com/agentharness/agentharness/task"
	taskredis "github.com/agentharness/agentharness/task/redis"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "harnessd",
		Short:         "Task-protocol server for conversational agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./harnessd.yaml)")
	cmd.AddCommand(serveCmd())
	return cmd
}

func initConfig() error {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.name", "agentharness")
	viper.SetDefault("server.version", "0.1.0")
	viper.SetDefault("engine.provider", "anthropic")
	viper.SetDefault("pool.session_ttl", 15*time.Minute)
	viper.SetDefault("pool.eviction_interval", time.Minute)
	viper.SetDefault("executor.cancel_wait", 5*time.Second)
	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("harnessd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/harnessd")
	}
	viper.SetEnvPrefix("HARNESS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}

			logger, closeLog, err := buildLogger()
			if err != nil {
				return err
			}
			defer closeLog()

			eng, err := buildEngine()
			if err != nil {
				return err
			}
			store, err := buildStore()
			if err != nil {
				return err
			}

			h := agentharness.New(func(o *agentharness.Options) {
				o.Engine = eng
				o.TaskStore = store
				o.Logger = logger
				o.SessionTTL = viper.GetDuration("pool.session_ttl")
				o.EvictionInterval = viper.GetDuration("pool.eviction_interval")
				o.CancelWait = viper.GetDuration("executor.cancel_wait")
				o.Name = viper.GetString("server.name")
				o.Description = viper.GetString("server.description")
				o.Version = viper.GetString("server.version")
				o.URL = viper.GetString("server.url")
				if secret := viper.GetString("auth.jwt_secret"); secret != "" {
					o.JWTSecret = []byte(secret)
				}
			})
			defer h.Shutdown()

			if err := registerAgents(h); err != nil {
				return err
			}

			srv := h.Server()
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Run(viper.GetString("server.addr")) }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logger.Info("shutting down", "signal", sig.String())
				return nil
			}
		},
	}
}

func buildLogger() (logging.Logger, func(), error) {
	var level logging.LogLevel
	switch name := viper.GetString("log.level"); name {
	case "debug":
		level = logging.LogLevelDebug
	case "info":
		level = logging.LogLevelInfo
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level %q", name)
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if file := viper.GetString("log.file"); file != "" {
		lj := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		w = lj
		closeFn = func() { _ = lj.Close() }
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: viper.GetString("log.format"),
		Output: w,
	})
	return logger, closeFn, nil
}

func buildEngine() (engine.Engine, error) {
	switch provider := viper.GetString("engine.provider"); provider {
	case "anthropic":
		return anthropic.NewEngine(func(o *anthropic.Options) {
			if key := viper.GetString("anthropic.api_key"); key != "" {
				o.APIKey = key
			}
		}), nil
	case "openai":
		return openai.NewEngine(), nil
	case "mock":
		// Useful for smoke-testing deployments without API credentials.
		return engine.NewMockEngine(), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", provider)
	}
}

func buildStore() (task.Store, error) {
	switch backend := viper.GetString("store.backend"); backend {
	case "memory":
		return task.NewInMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		})
		return taskredis.NewStore(client, func(o *taskredis.Options) {
			if retention := viper.GetDuration("redis.retention"); retention > 0 {
				o.Retention = retention
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// agentSpec is the YAML shape of one configured agent.
type agentSpec struct {
	Name           string         `mapstructure:"name"`
	Description    string         `mapstructure:"description"`
	SystemPrompt   string         `mapstructure:"system_prompt"`
	Model          string         `mapstructure:"model"`
	Tools          []string       `mapstructure:"tools"`
	MaxTurns       int            `mapstructure:"max_turns"`
	SettingSources []string       `mapstructure:"setting_sources"`
	OutputFormat   map[string]any `mapstructure:"output_format"`
	Skills         []struct {
		ID          string   `mapstructure:"id"`
		Name        string   `mapstructure:"name"`
		Description string   `mapstructure:"description"`
		Tags        []string `mapstructure:"tags"`
	} `mapstructure:"skills"`
}

func registerAgents(h *agentharness.Harness) error {
	var specs []agentSpec
	if err := viper.UnmarshalKey("agents", &specs); err != nil {
		return fmt.Errorf("parse agents config: %w", err)
	}
	if len(specs) == 0 {
		return fmt.Errorf("no agents configured; define at least one under the agents key")
	}
	for _, spec := range specs {
		skills := make([]agent.Skill, len(spec.Skills))
		for i, s := range spec.Skills {
			skills[i] = agent.Skill{ID: s.ID, Name: s.Name, Description: s.Description, Tags: s.Tags}
		}
		err := h.Agent(agent.Config{
			Name:           spec.Name,
			Description:    spec.Description,
			Skills:         skills,
			SystemPrompt:   spec.SystemPrompt,
			Tools:          spec.Tools,
			MaxTurns:       spec.MaxTurns,
			Model:          spec.Model,
			SettingSources: spec.SettingSources,
			OutputFormat:   spec.OutputFormat,
		})
		if err != nil {
			return fmt.Errorf("register agent %q: %w", spec.Name, err)
		}
	}
	return nil
}
