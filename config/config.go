package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Config captures the command-line options shared by all sub-commands.
type Config struct {
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	InsecureSkipVerify bool
	DialTimeout        time.Duration
	CommandTimeout     time.Duration
	APIBaseURL         string
	APITimeout         time.Duration
	AdminUser          string
	AdminPass          string
	BatchSize          int
	LogLevel           string
	LogDir             string
}

// RegisterFlags attaches the shared flags to cmd so every sub-command
// inherits them.
func RegisterFlags(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	flags.String("imap-host", "imap.gmail.com", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "Mailbox address (falls back to TEST_EMAIL env var)")
	flags.String("imap-pass", "", "Mailbox application password (falls back to TEST_EMAIL_PASSWORD or IMAP_PASS env var)")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.Duration("dial-timeout", 30*time.Second, "IMAP connect timeout")
	flags.Duration("command-timeout", 30*time.Second, "Longest wait for the IMAP server to answer one command")
	flags.String("api-base-url", "", "Base URL of the service under test (falls back to API_BASE_URL env var)")
	flags.Duration("api-timeout", 30*time.Second, "HTTP request timeout")
	flags.String("admin-user", "", "Privileged username (falls back to GLOBAL_ADMIN_USERNAME env var)")
	flags.String("admin-pass", "", "Privileged password (falls back to GLOBAL_ADMIN_PASSWORD env var)")
	flags.Int("batch-size", 34, "Maximum users per create or delete request")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	return nil
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	imapHost, err := flags.GetString("imap-host")
	if err != nil {
		return Config{}, err
	}
	imapPort, err := flags.GetInt("imap-port")
	if err != nil {
		return Config{}, err
	}
	imapUser, err := flags.GetString("imap-user")
	if err != nil {
		return Config{}, err
	}
	imapPass, err := flags.GetString("imap-pass")
	if err != nil {
		return Config{}, err
	}
	insecureSkipVerify, err := flags.GetBool("insecure-skip-verify")
	if err != nil {
		return Config{}, err
	}
	dialTimeout, err := flags.GetDuration("dial-timeout")
	if err != nil {
		return Config{}, err
	}
	commandTimeout, err := flags.GetDuration("command-timeout")
	if err != nil {
		return Config{}, err
	}
	apiBaseURL, err := flags.GetString("api-base-url")
	if err != nil {
		return Config{}, err
	}
	apiTimeout, err := flags.GetDuration("api-timeout")
	if err != nil {
		return Config{}, err
	}
	adminUser, err := flags.GetString("admin-user")
	if err != nil {
		return Config{}, err
	}
	adminPass, err := flags.GetString("admin-pass")
	if err != nil {
		return Config{}, err
	}
	batchSize, err := flags.GetInt("batch-size")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}

	imapUser = firstNonEmpty(imapUser, os.Getenv("TEST_EMAIL"))
	imapPass = firstNonEmpty(imapPass, os.Getenv("TEST_EMAIL_PASSWORD"), os.Getenv("IMAP_PASS"))
	apiBaseURL = firstNonEmpty(apiBaseURL, os.Getenv("API_BASE_URL"))
	adminUser = firstNonEmpty(adminUser, os.Getenv("GLOBAL_ADMIN_USERNAME"))
	adminPass = firstNonEmpty(adminPass, os.Getenv("GLOBAL_ADMIN_PASSWORD"))

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}
	if logDir != "" {
		logDir = filepath.Clean(logDir)
	}

	cfg := Config{
		IMAPHost:           imapHost,
		IMAPPort:           imapPort,
		IMAPUser:           imapUser,
		IMAPPass:           imapPass,
		InsecureSkipVerify: insecureSkipVerify,
		DialTimeout:        dialTimeout,
		CommandTimeout:     commandTimeout,
		APIBaseURL:         apiBaseURL,
		APITimeout:         apiTimeout,
		AdminUser:          adminUser,
		AdminPass:          adminPass,
		BatchSize:          batchSize,
		LogLevel:           logLevel,
		LogDir:             logDir,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
		return fmt.Errorf("--imap-port must be between 1 and 65535")
	}
	if cfg.DialTimeout <= 0 {
		return fmt.Errorf("--dial-timeout must be positive")
	}
	if cfg.CommandTimeout <= 0 {
		return fmt.Errorf("--command-timeout must be positive")
	}
	if cfg.APITimeout <= 0 {
		return fmt.Errorf("--api-timeout must be positive")
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("--batch-size must be positive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

// RequireMailbox reports the first missing mailbox setting.
func (c Config) RequireMailbox() error {
	if c.IMAPHost == "" {
		return fmt.Errorf("--imap-host is required")
	}
	if c.IMAPUser == "" {
		return fmt.Errorf("mailbox address must be provided via --imap-user or TEST_EMAIL env var")
	}
	if c.IMAPPass == "" {
		return fmt.Errorf("mailbox password must be provided via --imap-pass, TEST_EMAIL_PASSWORD or IMAP_PASS env var")
	}
	return nil
}

// RequireAdmin reports the first missing setting for privileged API calls.
func (c Config) RequireAdmin() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("--api-base-url is required")
	}
	if c.AdminUser == "" {
		return fmt.Errorf("admin username must be provided via --admin-user or GLOBAL_ADMIN_USERNAME env var")
	}
	if c.AdminPass == "" {
		return fmt.Errorf("admin password must be provided via --admin-pass or GLOBAL_ADMIN_PASSWORD env var")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
