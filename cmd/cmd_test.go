package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	libtotp "github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/mfa-probe/mfa-probe/config"
	"github.com/mfa-probe/mfa-probe/mailbox"
)

const enrollSecret = "JBSWY3DPEHPK3PXP"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{"TEST_EMAIL", "TEST_EMAIL_PASSWORD", "IMAP_PASS", "API_BASE_URL", "GLOBAL_ADMIN_USERNAME", "GLOBAL_ADMIN_PASSWORD"} {
		t.Setenv(key, "")
	}

	root := &cobra.Command{Use: "mfaprobe", SilenceUsage: true, SilenceErrors: true}
	require.NoError(t, config.RegisterFlags(root))
	Register(root)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func TestTOTPCommand(t *testing.T) {
	out, err := run(t, "totp", "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ", "--at", "59")
	require.NoError(t, err)
	require.Equal(t, "287082\n", out)

	_, err = run(t, "totp", "not base32!")
	require.Error(t, err)
}

func TestQRSecretCommand(t *testing.T) {
	png, err := qrcode.Encode("otpauth://totp/Probe:alice?secret="+enrollSecret+"&issuer=Probe", qrcode.Medium, 256)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "enroll.png")
	require.NoError(t, os.WriteFile(path, png, 0o600))

	out, err := run(t, "qr-secret", path, "--code")
	require.NoError(t, err)
	got := lines(out)
	require.Len(t, got, 2)
	require.Equal(t, enrollSecret, got[0])
	require.Len(t, got[1], 6)

	_, err = run(t, "qr-secret", filepath.Join(t.TempDir(), "missing.png"))
	require.ErrorContains(t, err, "read image")
}

func TestMailCommandFromMbox(t *testing.T) {
	fixture := filepath.Join("..", "mbox", "testdata", "messages.mbox")

	out, err := run(t, "mail", "otp", "--mbox", fixture, "--subject", "verification code", "--imap-user", "probe@example.com")
	require.NoError(t, err)
	require.Equal(t, "222222\n", out)

	_, err = run(t, "mail", "token", "--mbox", fixture, "--subject", "verification code")
	require.ErrorIs(t, err, mailbox.ErrCodeNotFound)

	_, err = run(t, "mail", "otp", "--mbox", fixture, "--subject", "password reset")
	require.Error(t, err)
}

func TestMailCommandValidation(t *testing.T) {
	_, err := run(t, "mail", "otp")
	require.ErrorContains(t, err, "subject")

	_, err = run(t, "mail", "otp", "--subject", "code")
	require.ErrorContains(t, err, "TEST_EMAIL")
}

type adminServer struct {
	mu      sync.Mutex
	logins  int
	deletes [][]string
}

func newAdminServer(t *testing.T) (*adminServer, *httptest.Server) {
	s := &adminServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		s.logins++
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("DELETE /admin/delete/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var ids []string
		if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.deletes = append(s.deletes, ids)
		s.mu.Unlock()
	})
	mux.HandleFunc("POST /auth/mfa/requestTo/toggle", func(w http.ResponseWriter, r *http.Request) {
		png, err := qrcode.Encode("otpauth://totp/Probe:alice?secret="+enrollSecret+"&issuer=Probe", qrcode.Medium, 256)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	})
	mux.HandleFunc("POST /auth/mfa/verifyTo/toggle", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !libtotp.Validate(body["otpTotp"], enrollSecret) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *adminServer) snapshot() (int, [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins, append([][]string(nil), s.deletes...)
}

func TestCleanupUsersCommand(t *testing.T) {
	svc, srv := newAdminServer(t)

	_, err := run(t, "cleanup-users", "alice", "bob", "carol", "bob",
		"--api-base-url", srv.URL, "--admin-user", "root", "--admin-pass", "secret", "--batch-size", "2")
	require.NoError(t, err)

	logins, deletes := svc.snapshot()
	require.Equal(t, 1, logins)
	require.Equal(t, [][]string{{"alice", "bob"}, {"carol"}}, deletes)

	_, err = run(t, "cleanup-users", "alice", "--api-base-url", srv.URL)
	require.ErrorContains(t, err, "GLOBAL_ADMIN_USERNAME")
}

func TestEnrollCommand(t *testing.T) {
	_, srv := newAdminServer(t)

	out, err := run(t, "enroll-totp", "--api-base-url", srv.URL, "--user", "alice", "--password", "secret")
	require.NoError(t, err)
	require.Equal(t, enrollSecret+"\n", out)

	_, err = run(t, "enroll-totp", "--api-base-url", srv.URL, "--user", "alice", "--password", "wrong")
	require.Error(t, err)
}
