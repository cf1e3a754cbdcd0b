package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	root := &cobra.Command{Use: "mfa-probe"}
	require.NoError(t, RegisterFlags(root))

	var cfg Config
	var loadErr error
	child := &cobra.Command{
		Use: "child",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, loadErr = LoadConfig(cmd)
			return nil
		},
	}
	root.AddCommand(child)
	root.SetArgs(append([]string{"child"}, args...))
	require.NoError(t, root.Execute())
	return cfg, loadErr
}

func clearEnv(t *testing.T) {
	for _, key := range []string{"TEST_EMAIL", "TEST_EMAIL_PASSWORD", "IMAP_PASS", "API_BASE_URL", "GLOBAL_ADMIN_USERNAME", "GLOBAL_ADMIN_PASSWORD"} {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := parse(t)
	require.NoError(t, err)
	require.Equal(t, "imap.gmail.com", cfg.IMAPHost)
	require.Equal(t, 993, cfg.IMAPPort)
	require.Equal(t, 30*time.Second, cfg.DialTimeout)
	require.Equal(t, 30*time.Second, cfg.CommandTimeout)
	require.Equal(t, 34, cfg.BatchSize)
	require.Equal(t, "info", cfg.LogLevel)

	require.ErrorContains(t, cfg.RequireMailbox(), "TEST_EMAIL")
	require.ErrorContains(t, cfg.RequireAdmin(), "--api-base-url")
}

func TestEnvFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_EMAIL", "probe@example.com")
	t.Setenv("IMAP_PASS", "from-imap-pass")
	t.Setenv("API_BASE_URL", "http://localhost:8080")
	t.Setenv("GLOBAL_ADMIN_USERNAME", "root")
	t.Setenv("GLOBAL_ADMIN_PASSWORD", "secret")

	cfg, err := parse(t)
	require.NoError(t, err)
	require.Equal(t, "probe@example.com", cfg.IMAPUser)
	require.Equal(t, "from-imap-pass", cfg.IMAPPass)
	require.NoError(t, cfg.RequireMailbox())
	require.NoError(t, cfg.RequireAdmin())

	t.Setenv("TEST_EMAIL_PASSWORD", "app-password")
	cfg, err = parse(t, "--imap-user", "flag@example.com")
	require.NoError(t, err)
	require.Equal(t, "flag@example.com", cfg.IMAPUser)
	require.Equal(t, "app-password", cfg.IMAPPass)
}

func TestValidation(t *testing.T) {
	clearEnv(t)
	cases := []struct {
		args []string
		want string
	}{
		{args: []string{"--imap-port", "0"}, want: "--imap-port"},
		{args: []string{"--batch-size", "0"}, want: "--batch-size"},
		{args: []string{"--api-timeout", "0s"}, want: "--api-timeout"},
		{args: []string{"--dial-timeout", "-1s"}, want: "--dial-timeout"},
		{args: []string{"--command-timeout", "0s"}, want: "--command-timeout"},
		{args: []string{"--log-level", "verbose"}, want: "--log-level"},
	}
	for _, tc := range cases {
		_, err := parse(t, tc.args...)
		require.ErrorContains(t, err, tc.want, tc.args)
	}

	cfg, err := parse(t, "--log-level", "WARNING")
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.LogLevel)
}
