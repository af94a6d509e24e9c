// Command citysense runs the local conditions research service, either as an
// HTTP server or as an interactive terminal chat.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/cobra"

	"github.com/citysense-ai/citysense/conditions"
	"github.com/citysense-ai/citysense/config"
	"github.com/citysense-ai/citysense/core"
	"github.com/citysense-ai/citysense/location"
	"github.com/citysense-ai/citysense/logging"
	"github.com/citysense-ai/citysense/model"
	"github.com/citysense-ai/citysense/model/anthropic"
	modelopenai "github.com/citysense-ai/citysense/model/openai"
	"github.com/citysense-ai/citysense/pipeline"
	"github.com/citysense-ai/citysense/search"
	"github.com/citysense-ai/citysense/server"
	"github.com/citysense-ai/citysense/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "citysense",
		Short:         "Air quality and traffic research agents for your city",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newChatCmd(&configPath),
	)

	return rootCmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cfg)

			coord, err := buildCoordinator(cfg, logger)
			if err != nil {
				return err
			}

			engine := server.New(coord, func(o *server.Options) { o.Logger = logger })

			logger.Info("server.listening", "addr", cfg.Addr)
			return engine.Run(cfg.Addr)
		},
	}
}

func newChatCmd(configPath *string) *cobra.Command {
	var (
		userID    string
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the research agents in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			coord, err := buildCoordinator(cfg, logging.NoOpLogger{})
			if err != nil {
				return err
			}

			fmt.Println("CitySense chat. Type 'exit' or 'quit' to leave.")

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}

				answer, err := coord.RunTurn(cmd.Context(), userID, sessionID, line, nil)
				if err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					continue
				}
				fmt.Println(answer)
			}
		},
	}

	cmd.Flags().StringVar(&userID, "user", "user", "user id")
	cmd.Flags().StringVar(&sessionID, "session", "default_session", "session id")

	return cmd
}

func newLogger(cfg *config.Config) logging.Logger {
	level := logging.LogLevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = logging.LogLevelDebug
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	}
	return logging.New(&logging.Config{Level: level, Format: "json", Output: os.Stdout})
}

func buildCoordinator(cfg *config.Config, logger logging.Logger) (*pipeline.Coordinator, error) {
	llm, err := buildModel(cfg)
	if err != nil {
		return nil, err
	}

	resolver := location.NewResolver(func(o *location.ResolverOptions) {
		if cfg.Location.Endpoint != "" {
			o.Endpoint = cfg.Location.Endpoint
		}
		o.Token = cfg.Location.Token
		o.Logger = logger
	})

	var provider search.Provider
	if cfg.Search.TavilyAPIKey != "" {
		provider = search.NewTavily(cfg.Search.TavilyAPIKey, func(o *search.TavilyOptions) {
			o.Depth = cfg.Search.Depth
		})
	}

	tree, err := conditions.BuildPipeline(conditions.Config{
		Model:           llm,
		Locator:         resolver,
		Search:          provider,
		ResearchTimeout: cfg.ResearchTimeout,
	})
	if err != nil {
		return nil, err
	}

	var sessions core.SessionStore
	if cfg.DBPath != "" {
		sessions, err = session.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
	} else {
		sessions = session.NewInMemoryStore()
	}

	return pipeline.NewCoordinator(tree, func(o *pipeline.Options) {
		o.SessionStore = sessions
		o.Logger = logger
	}), nil
}

func buildModel(cfg *config.Config) (model.Model, error) {
	switch cfg.Model.Provider {
	case "openai":
		client := openai.NewClient(option.WithAPIKey(cfg.Model.OpenAIAPIKey))
		return modelopenai.NewModelFromClient(&client, func(o *modelopenai.Options) {
			if cfg.Model.Name != "" {
				o.Model = cfg.Model.Name
			}
			o.Temperature = cfg.Model.Temperature
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Model.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Model.Name)
			}
			o.Temperature = cfg.Model.Temperature
			o.APIKey = cfg.Model.AnthropicAPIKey
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
}
