package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mfa-probe/mfa-probe/batch"
)

const (
	MFATypeAuthenticatorApp = "AUTHENTICATOR_APP_MFA"
	MFATypeEmail            = "EMAIL_MFA"

	Enable  = "enable"
	Disable = "disable"

	defaultTimeout = 30 * time.Second
)

var (
	ErrMissingBaseURL   = errors.New("api base url is empty")
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrMissingToken     = errors.New("login response carried no access token")
)

type Config struct {
	BaseURL string
	Timeout time.Duration
	Debug   bool
	Logger  *slog.Logger
}

// Client talks to the authentication and user-management service.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json, image/png").
		SetHeader("Content-Type", "application/json")
	if cfg.Debug {
		httpClient.SetDebug(true)
	}

	return &Client{http: httpClient, logger: cfg.Logger}, nil
}

// Response is a status code plus raw body. Non-2xx statuses are not errors;
// callers decide what they expect.
type Response struct {
	Status int
	Body   []byte
}

func (r *Response) StatusCode() int { return r.Status }

func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

type LoginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	StateToken   string `json:"state_token"`
}

func (c *Client) Login(ctx context.Context, usernameOrEmail, password string) (*Response, error) {
	body := map[string]string{
		"usernameOrEmail": usernameOrEmail,
		"password":        password,
	}
	return c.do(ctx, c.http.R().SetBody(body), http.MethodPost, "/auth/login")
}

// AccessToken logs in and returns the bearer token. Any status other than
// 200 is an error wrapping ErrUnexpectedStatus.
func (c *Client) AccessToken(ctx context.Context, usernameOrEmail, password string) (string, error) {
	resp, err := c.Login(ctx, usernameOrEmail, password)
	if err != nil {
		return "", err
	}
	if resp.Status != http.StatusOK {
		return "", fmt.Errorf("login %s: %w: %d", usernameOrEmail, ErrUnexpectedStatus, resp.Status)
	}
	var result LoginResult
	if err := resp.Decode(&result); err != nil {
		return "", err
	}
	if result.AccessToken == "" {
		return "", ErrMissingToken
	}
	return result.AccessToken, nil
}

func (c *Client) Logout(ctx context.Context, accessToken string) (*Response, error) {
	return c.do(ctx, c.http.R().SetAuthToken(accessToken), http.MethodPost, "/auth/logout")
}

// RequestToToggleMFA starts enabling or disabling an MFA method. For the
// authenticator app the body of a successful enable is a QR code PNG.
func (c *Client) RequestToToggleMFA(ctx context.Context, accessToken, mfaType, toggle string) (*Response, error) {
	body := map[string]string{
		"type":   mfaType,
		"toggle": toggle,
	}
	return c.do(ctx, c.http.R().SetAuthToken(accessToken).SetBody(body), http.MethodPost, "/auth/mfa/requestTo/toggle")
}

func (c *Client) VerifyToggleMFA(ctx context.Context, accessToken, mfaType, toggle, code string) (*Response, error) {
	body := map[string]string{
		"type":    mfaType,
		"toggle":  toggle,
		"otpTotp": code,
	}
	return c.do(ctx, c.http.R().SetAuthToken(accessToken).SetBody(body), http.MethodPost, "/auth/mfa/verifyTo/toggle")
}

func (c *Client) CreateUsers(ctx context.Context, accessToken string, users []User, leniency string) (*Response, error) {
	req := c.http.R().SetAuthToken(accessToken).SetBody(users)
	if leniency != "" {
		req.SetQueryParam("leniency", leniency)
	}
	return c.do(ctx, req, http.MethodPost, "/admin/create/users")
}

func (c *Client) DeleteUsers(ctx context.Context, accessToken string, usernamesOrEmails []string, hard, leniency string) (*Response, error) {
	req := c.http.R().SetAuthToken(accessToken).SetBody(usernamesOrEmails)
	if hard != "" {
		req.SetQueryParam("hard", hard)
	}
	if leniency != "" {
		req.SetQueryParam("leniency", leniency)
	}
	return c.do(ctx, req, http.MethodDelete, "/admin/delete/users")
}

// Authenticator logs in as the credential's identity with password.
func (c *Client) Authenticator(password string) batch.Authenticator {
	return batch.AuthenticatorFunc(func(ctx context.Context, identity string) (string, error) {
		return c.AccessToken(ctx, identity, password)
	})
}

func (c *Client) do(ctx context.Context, req *resty.Request, method, path string) (*Response, error) {
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if c.logger != nil {
		c.logger.Debug("api call", "method", method, "path", path, "status", resp.StatusCode(), "duration", resp.Time())
	}
	return &Response{Status: resp.StatusCode(), Body: resp.Body()}, nil
}
