// Package tui is the interactive configuration wizard.
package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"

	"github.com/verbatimhq/verbatim/internal/config"
	"github.com/verbatimhq/verbatim/internal/provider"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// ConfigSection represents a configuration section
type ConfigSection string

const (
	SectionAPI           ConfigSection = "api"
	SectionProviders     ConfigSection = "providers"
	SectionStreaming     ConfigSection = "streaming"
	SectionServer        ConfigSection = "server"
	SectionNotifications ConfigSection = "notifications"
	SectionSaveExit      ConfigSection = "save_exit"
	SectionDiscardExit   ConfigSection = "discard_exit"
)

// Run starts the configuration wizard over the given config.
func Run(cfg *config.Config) (*ConfigureResult, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()

		section, err := selectSection()
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch section {
		case SectionAPI:
			err = editAPI(cfg)
		case SectionProviders:
			err = editProviders(cfg)
		case SectionStreaming:
			err = editStreaming(cfg)
		case SectionServer:
			err = editServer(cfg)
		case SectionNotifications:
			err = editNotifications(cfg)
		case SectionSaveExit:
			return &ConfigureResult{Config: cfg}, nil
		case SectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil
		}
		if err != nil {
			// esc inside a section goes back to the menu
			continue
		}
	}
}

func selectSection() (ConfigSection, error) {
	options := []huh.Option[ConfigSection]{
		huh.NewOption("API Connection", SectionAPI),
		huh.NewOption("Provider Keys", SectionProviders),
		huh.NewOption("Streaming", SectionStreaming),
		huh.NewOption("Server", SectionServer),
		huh.NewOption("Notifications", SectionNotifications),
		huh.NewOption("Save & Exit", SectionSaveExit),
		huh.NewOption("Discard & Exit", SectionDiscardExit),
	}

	var selected ConfigSection
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[ConfigSection]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

func editAPI(cfg *config.Config) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API server URL").
				Description("Where the recorder agent reaches the verbatim server").
				Placeholder("http://localhost:8080").
				Value(&cfg.API.BaseURL),
			huh.NewInput().
				Title("API token").
				Description("Bearer token (leave empty and run verbatim login instead)").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.API.Token),
		),
	).WithTheme(getTheme())
	return form.Run()
}

func editProviders(cfg *config.Config) error {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]config.ProviderConfig)
	}

	dg := cfg.Providers["deepgram"]
	oa := cfg.Providers["openai"]

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Deepgram API key").
				Description("Used by the server to mint ephemeral streaming keys").
				EchoMode(huh.EchoModePassword).
				Value(&dg.APIKey),
			huh.NewInput().
				Title("Deepgram project ID").
				Value(&dg.ProjectID),
			huh.NewInput().
				Title("OpenAI API key").
				Description("Optional, enables Whisper file transcription").
				EchoMode(huh.EchoModePassword).
				Value(&oa.APIKey),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Providers["deepgram"] = dg
	if oa.APIKey != "" {
		cfg.Providers["openai"] = oa
	}
	return nil
}

func editStreaming(cfg *config.Config) error {
	providerOptions := make([]huh.Option[string], 0)
	for _, name := range provider.List() {
		if p, ok := provider.Get(name); ok && p.SupportsStreaming {
			providerOptions = append(providerOptions, huh.NewOption(name, name))
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Streaming provider").
				Options(providerOptions...).
				Value(&cfg.Streaming.Provider),
			huh.NewInput().
				Title("Model").
				Placeholder("nova-2").
				Value(&cfg.Streaming.Model),
			huh.NewInput().
				Title("Language").
				Description("ISO-639-1 code, empty for auto-detect").
				Value(&cfg.Streaming.Language),
		),
	).WithTheme(getTheme())
	return form.Run()
}

func editServer(cfg *config.Config) error {
	rate := strconv.Itoa(cfg.Server.RateLimitPerMin)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Placeholder(":8080").
				Value(&cfg.Server.Addr),
			huh.NewInput().
				Title("Data directory").
				Description("Where users and transcripts are stored (empty = default)").
				Value(&cfg.Server.DataDir),
			huh.NewInput().
				Title("Requests per minute").
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 0 {
						return fmt.Errorf("must be a non-negative number")
					}
					return nil
				}).
				Value(&rate),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	if n, err := strconv.Atoi(rate); err == nil {
		cfg.Server.RateLimitPerMin = n
	}
	return nil
}

func editNotifications(cfg *config.Config) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable notifications?").
				Value(&cfg.Notifications.Enabled),
			huh.NewSelect[string]().
				Title("Notification type").
				Options(
					huh.NewOption("Desktop (notify-send)", "desktop"),
					huh.NewOption("Log only", "log"),
					huh.NewOption("None", "none"),
				).
				Value(&cfg.Notifications.Type),
		),
	).WithTheme(getTheme())
	return form.Run()
}
