// Package setup runs the first-time configuration wizard and holds the
// small helpers main uses to exit cleanly on every platform.
package setup

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/raine/resale-pricer/internal/config"
	"github.com/raine/resale-pricer/internal/ebay"
	"github.com/raine/resale-pricer/internal/llm"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// envOrder is the order variables are written to the config file.
var envOrder = []string{
	"AI_PROVIDER",
	"ANTHROPIC_API_KEY",
	"OPENAI_API_KEY",
	"GEMINI_API_KEY",
	"EBAY_ENV",
	"EBAY_CLIENT_ID",
	"EBAY_CLIENT_SECRET",
	"TOKEN_KEY",
	"BOT_TOKEN",
	"ADMIN_TELEGRAM_ID",
}

// IsInteractiveTerminal returns true if both stdin and stdout are TTYs.
// This is used to determine if we can run the interactive setup wizard.
func IsInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Answers are the values collected by the wizard.
type Answers struct {
	Provider         string
	APIKey           string
	EbayEnv          string
	EbayClientID     string
	EbayClientSecret string
	BotToken         string
	AdminID          string
}

// Env returns the answers as config file variables. A fresh TOKEN_KEY is
// generated so the eBay token is persisted encrypted from the first run.
func (a Answers) Env() map[string]string {
	env := map[string]string{
		"AI_PROVIDER":        a.Provider,
		"EBAY_ENV":           a.EbayEnv,
		"EBAY_CLIENT_ID":     a.EbayClientID,
		"EBAY_CLIENT_SECRET": a.EbayClientSecret,
		"TOKEN_KEY":          generateTokenKey(),
	}
	switch a.Provider {
	case llm.ProviderOpenAI:
		env["OPENAI_API_KEY"] = a.APIKey
	case llm.ProviderGemini:
		env["GEMINI_API_KEY"] = a.APIKey
	default:
		env["ANTHROPIC_API_KEY"] = a.APIKey
	}
	if a.BotToken != "" {
		env["BOT_TOKEN"] = a.BotToken
		env["ADMIN_TELEGRAM_ID"] = a.AdminID
	}
	return env
}

// RunWizard runs an interactive wizard to collect the pricing credentials.
// Returns true if setup was successful and startup should continue.
func RunWizard(ctx context.Context) bool {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	fmt.Println()
	fmt.Println(titleStyle.Render("🏷  Resale Pricer - First-time Setup"))
	fmt.Println()

	a := Answers{Provider: llm.ProviderAnthropic, EbayEnv: "production"}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("AI provider").
				Description("Used to recognize items in photos").
				Options(
					huh.NewOption("Anthropic", llm.ProviderAnthropic),
					huh.NewOption("OpenAI", llm.ProviderOpenAI),
					huh.NewOption("Gemini", llm.ProviderGemini),
				).
				Value(&a.Provider),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("API key").
				DescriptionFunc(func() string { return apiKeyHelp(a.Provider) }, &a.Provider).
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey).
				Validate(required("API key is required")),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("eBay environment").
				Options(
					huh.NewOption("Production", "production"),
					huh.NewOption("Sandbox", "sandbox"),
				).
				Value(&a.EbayEnv),
			huh.NewInput().
				Title("eBay Client ID").
				Description("Create a keyset at https://developer.ebay.com/my/keys").
				Value(&a.EbayClientID).
				Validate(required("client ID is required")),
			huh.NewInput().
				Title("eBay Client Secret").
				EchoMode(huh.EchoModePassword).
				Value(&a.EbayClientSecret).
				Validate(required("client secret is required")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram Bot Token (optional)").
				Description("Message @BotFather on Telegram → /newbot → copy token. Leave empty to run the HTTP API only.").
				Value(&a.BotToken),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Your Telegram User ID").
				Description("Message @userinfobot to get your ID: https://t.me/userinfobot").
				Value(&a.AdminID).
				Validate(validateAdminID),
		).WithHideFunc(func() bool { return a.BotToken == "" }),
	).WithTheme(huh.ThemeBase16())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("\nSetup cancelled.")
			return false
		}
		fmt.Printf("\nError: %v\n", err)
		return false
	}

	if err := validateEbayCredentials(ctx, a); err != nil {
		fmt.Printf("\neBay rejected the credentials: %v\n", err)
		WaitOnWindows()
		return false
	}

	env := a.Env()
	configPath, err := config.EnvFilePath()
	if err != nil {
		fmt.Printf("\nError saving configuration: %v\n", err)
		return false
	}
	if err := writeEnvFile(configPath, env); err != nil {
		fmt.Printf("\nError saving configuration: %v\n", err)
		WaitOnWindows()
		return false
	}

	// Set values in current process
	for k, v := range env {
		os.Setenv(k, v)
	}

	successStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)
	pathStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))

	fmt.Println()
	fmt.Println(successStyle.Render("✓ Configuration saved"))
	fmt.Println(pathStyle.Render("  " + configPath))
	fmt.Println()

	return true
}

func apiKeyHelp(provider string) string {
	switch provider {
	case llm.ProviderOpenAI:
		return "Get yours at https://platform.openai.com/api-keys"
	case llm.ProviderGemini:
		return "Get yours at https://aistudio.google.com/apikey"
	}
	return "Get yours at https://console.anthropic.com/settings/keys"
}

func required(msg string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(msg)
		}
		return nil
	}
}

func validateAdminID(s string) error {
	if s == "" {
		return errors.New("user ID is required")
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return errors.New("must be a number")
	}
	return nil
}

// validateEbayCredentials fetches one application token.
func validateEbayCredentials(ctx context.Context, a Answers) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	tokens := ebay.NewTokenSource(ebay.BaseURLFor(a.EbayEnv), a.EbayClientID, a.EbayClientSecret, nil)
	_, err := tokens.Token(ctx)
	return err
}

func generateTokenKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based if crypto/rand fails (unlikely)
		return fmt.Sprintf("pricer-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}

// writeEnvFile writes the configuration to path.
// Uses restrictive permissions (0600) since the file contains secrets.
func writeEnvFile(path string, env map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	// Write in a consistent order, quoting values to handle special characters
	for _, key := range envOrder {
		if val, ok := env[key]; ok {
			if _, err := fmt.Fprintf(f, "%s=%q\n", key, val); err != nil {
				return fmt.Errorf("failed to write %s: %w", key, err)
			}
		}
	}
	return nil
}

// WaitOnWindows pauses execution on Windows so users can see error messages
// before the console window closes.
func WaitOnWindows() {
	if runtime.GOOS == "windows" {
		fmt.Println()
		fmt.Println("Press Enter to exit...")
		fmt.Scanln()
	}
}

// FatalWithWait logs a fatal error and waits on Windows before exiting.
func FatalWithWait(format string, args ...any) {
	log.Error().Msgf(format, args...)
	WaitOnWindows()
	os.Exit(1)
}
