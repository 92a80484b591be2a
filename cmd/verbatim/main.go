package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/verbatimhq/verbatim/internal/apiclient"
	"github.com/verbatimhq/verbatim/internal/auth"
	"github.com/verbatimhq/verbatim/internal/broker"
	"github.com/verbatimhq/verbatim/internal/bus"
	"github.com/verbatimhq/verbatim/internal/config"
	"github.com/verbatimhq/verbatim/internal/daemon"
	"github.com/verbatimhq/verbatim/internal/deps"
	"github.com/verbatimhq/verbatim/internal/provider"
	"github.com/verbatimhq/verbatim/internal/recording"
	"github.com/verbatimhq/verbatim/internal/server"
	"github.com/verbatimhq/verbatim/internal/store"
	"github.com/verbatimhq/verbatim/internal/transcribe"
	"github.com/verbatimhq/verbatim/internal/tui"
)

func main() {
	_ = rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "verbatim",
	Short: "Real-time audio transcription: API server and recorder agent",
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		agentCmd(),
		toggleCmd(),
		cancelCmd(),
		statusCmd(),
		versionCmd(),
		stopCmd(),
		loginCmd(),
		transcribeCmd(),
		configureCmd(),
		doctorCmd(),
	)
}

// loadConfigOrDefault tolerates a missing config file; env vars can carry
// the secrets the server needs.
func loadConfigOrDefault() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		if !errors.Is(err, config.ErrConfigNotFound) {
			log.Printf("config load failed, using defaults: %v", err)
		}
		return config.DefaultConfig()
	}
	return cfg
}

func dataDir(cfg *config.Config) (string, error) {
	if cfg.Server.DataDir != "" {
		return cfg.Server.DataDir, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve data directory: %w", err)
	}
	return filepath.Join(configDir, "verbatim", "data"), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg := loadConfigOrDefault()

			secret := cfg.ResolveJWTSecret()
			if secret == "" {
				return fmt.Errorf("no JWT secret: set server.jwt_secret or VERBATIM_JWT_SECRET")
			}

			dir, err := dataDir(cfg)
			if err != nil {
				return err
			}

			users, err := auth.OpenRegistry(filepath.Join(dir, "users.json"))
			if err != nil {
				return err
			}
			tokens, err := auth.NewTokens(secret, 0)
			if err != nil {
				return err
			}
			st, err := store.OpenFileStore(filepath.Join(dir, "transcripts.json"))
			if err != nil {
				return err
			}

			var credentials broker.Source
			if key := cfg.ResolveAPIKey("deepgram"); key != "" {
				p, _ := provider.Get("deepgram")
				issuer := broker.NewIssuer(p.Keys.BaseURL, key, cfg.ResolveProjectID("deepgram"))
				issuer.KeysPath = p.Keys.Path
				credentials = issuer
			} else {
				log.Printf("serve: no deepgram key configured, credential endpoint disabled")
			}

			var batch transcribe.Adapter
			for _, name := range provider.ListBatch() {
				if key := cfg.ResolveAPIKey(name); key != "" {
					batch, err = transcribe.New(name, transcribe.Config{
						APIKey:   key,
						Language: cfg.Streaming.Language,
					})
					if err != nil {
						return err
					}
					break
				}
			}
			if batch == nil {
				log.Printf("serve: no provider key configured, transcribe endpoint disabled")
			}

			srv := server.New(server.Config{
				Addr:              cfg.Server.Addr,
				RequestsPerMinute: cfg.Server.RateLimitPerMin,
				MaxUploadBytes:    cfg.Server.MaxUploadMegabyte << 20,
			}, users, tokens, st, credentials, batch)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
}

func agentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the recorder agent daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return daemon.New(manager).Run()
		},
	}
}

func toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Toggle recording on/off",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdToggle)
			if err != nil {
				return fmt.Errorf("failed to toggle recording: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get current recording status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdStatus)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the current recording, discarding its transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdCancel)
			if err != nil {
				return fmt.Errorf("failed to cancel recording: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdVersion)
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the recorder agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdQuit)
			if err != nil {
				return fmt.Errorf("failed to stop agent: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	var email, password, serverURL string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the API server and store the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefault()
			if serverURL == "" {
				serverURL = cfg.API.BaseURL
			}
			if serverURL == "" {
				return fmt.Errorf("no server URL: pass --server or configure api.base_url")
			}
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			client, err := apiclient.Login(cmd.Context(), serverURL, email, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			cfg.API.BaseURL = serverURL
			cfg.API.Token = client.Token()
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			fmt.Println("Logged in; token saved.")
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&serverURL, "server", "", "API server URL")
	return cmd
}

func transcribeCmd() *cobra.Command {
	var providerName string

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file in one shot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg := loadConfigOrDefault()

			audio, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read audio file: %w", err)
			}
			mimeType := mime.TypeByExtension(filepath.Ext(args[0]))

			// logged in: upload through the API server so the transcript
			// lands in the account like a live recording would
			if cfg.API.BaseURL != "" && cfg.API.Token != "" {
				client := apiclient.New(cfg.API.BaseURL, cfg.API.Token)
				text, err := client.Transcribe(cmd.Context(), filepath.Base(args[0]), audio, mimeType)
				if err != nil {
					return err
				}
				fmt.Println(text)
				return nil
			}

			if providerName == "" {
				providerName = "deepgram"
			}
			key := cfg.ResolveAPIKey(providerName)
			if key == "" {
				return fmt.Errorf("no API key configured for %s", providerName)
			}

			adapter, err := transcribe.New(providerName, transcribe.Config{
				APIKey:   key,
				Language: cfg.Streaming.Language,
			})
			if err != nil {
				return err
			}

			text, err := adapter.Transcribe(cmd.Context(), audio, mimeType)
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "transcription provider (deepgram, openai)")
	return cmd
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				if !errors.Is(err, config.ErrConfigNotFound) {
					return fmt.Errorf("failed to load config: %w", err)
				}
				cfg = nil
			}

			result, err := tui.Run(cfg)
			if err != nil {
				return fmt.Errorf("configuration wizard error: %w", err)
			}
			if result.Cancelled {
				fmt.Println("Configuration cancelled.")
				return nil
			}

			if err := result.Config.Validate(); err != nil {
				fmt.Printf("Configuration validation failed: %v\n", err)
				return err
			}
			if err := config.Save(result.Config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Println()
			fmt.Println("Configuration saved successfully!")
			configPath, _ := config.GetConfigPath()
			fmt.Printf("Config file location: %s\n", configPath)
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external dependencies and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			printDep := func(name string, s deps.Status) {
				if s.Installed {
					fmt.Printf("  [x] %s (%s)\n", name, s.Path)
				} else {
					fmt.Printf("  [ ] %s not found\n", name)
				}
			}

			fmt.Println("Capture backends (one required):")
			printDep("ffmpeg", deps.CheckFFmpeg())
			printDep("pw-record", deps.CheckPwRecord())
			if name, enc, err := recording.Probe(recording.DefaultConfig()); err != nil {
				fmt.Printf("  [ ] no usable capture encoding: %v\n", err)
			} else {
				fmt.Printf("  [x] would capture %s via %s\n", enc, name)
			}
			fmt.Println("Notifications (optional):")
			printDep("notify-send", deps.CheckNotifySend())

			fmt.Println("Configuration:")
			cfg, err := config.Load()
			if err != nil {
				fmt.Printf("  [ ] %v\n", err)
				return nil
			}
			if err := cfg.Validate(); err != nil {
				fmt.Printf("  [ ] invalid: %v\n", err)
				return nil
			}
			fmt.Println("  [x] valid")

			if cfg.API.Token == "" {
				fmt.Println("  [ ] not logged in: run verbatim login")
			} else {
				fmt.Println("  [x] API token present")
			}
			return nil
		},
	}
}
