package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mfa-probe/mfa-probe/qr"
	"github.com/mfa-probe/mfa-probe/totp"
)

// Factor supplies the second factor a verify call asks for.
type Factor struct {
	Method string
	Code   func(ctx context.Context) (string, error)
}

// AuthenticatorFactor answers with the current TOTP code for secret.
func AuthenticatorFactor(secret string) Factor {
	return Factor{
		Method: MFATypeAuthenticatorApp,
		Code: func(context.Context) (string, error) {
			return totp.Now(secret)
		},
	}
}

// EmailFactor answers with a code delivered by mail, as read by code.
func EmailFactor(code func(ctx context.Context) (string, error)) Factor {
	return Factor{Method: MFATypeEmail, Code: code}
}

type ResetPasswordRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Code            string `json:"otpTotp"`
	Method          string `json:"method"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type ChangePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*Response, error) {
	body := map[string]string{"refreshToken": refreshToken}
	return c.do(ctx, c.http.R().SetBody(body), http.MethodPost, "/auth/refresh/accessToken")
}

func (c *Client) RevokeAccessToken(ctx context.Context, accessToken string) (*Response, error) {
	return c.do(ctx, c.http.R().SetAuthToken(accessToken), http.MethodPost, "/auth/revoke/accessToken")
}

func (c *Client) ForgotPassword(ctx context.Context, usernameOrEmail string) (*Response, error) {
	body := map[string]string{"usernameOrEmail": usernameOrEmail}
	return c.do(ctx, c.http.R().SetBody(body), http.MethodPost, "/user/forgot/password")
}

func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*Response, error) {
	return c.do(ctx, c.http.R().SetBody(req), http.MethodPost, "/user/reset/password")
}

func (c *Client) ChangePassword(ctx context.Context, accessToken string, req ChangePasswordRequest) (*Response, error) {
	return c.do(ctx, c.http.R().SetAuthToken(accessToken).SetBody(req), http.MethodPost, "/user/change/password")
}

func (c *Client) VerifyChangePassword(ctx context.Context, accessToken, code, method string) (*Response, error) {
	body := map[string]string{"otpTotp": code, "method": method}
	return c.do(ctx, c.http.R().SetAuthToken(accessToken).SetBody(body), http.MethodPost, "/user/verify/change/password")
}

func (c *Client) DeleteAccount(ctx context.Context, accessToken, password string) (*Response, error) {
	body := map[string]string{"password": password}
	return c.do(ctx, c.http.R().SetAuthToken(accessToken).SetBody(body), http.MethodDelete, "/user/delete/account")
}

func (c *Client) VerifyDeleteAccount(ctx context.Context, accessToken, code, method string) (*Response, error) {
	body := map[string]string{"otpTotp": code, "method": method}
	return c.do(ctx, c.http.R().SetAuthToken(accessToken).SetBody(body), http.MethodDelete, "/user/verify/delete/account")
}

// RefreshedToken trades a refresh token for a new access token.
func (c *Client) RefreshedToken(ctx context.Context, refreshToken string) (string, error) {
	resp, err := c.RefreshAccessToken(ctx, refreshToken)
	if err := expectOK("refresh access token", resp, err); err != nil {
		return "", err
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

// EnrollAuthenticator turns on authenticator-app MFA for the token's user. The
// secret is read from the enrollment QR code and proven with a fresh code
// before it is returned.
func (c *Client) EnrollAuthenticator(ctx context.Context, accessToken string) (string, error) {
	resp, err := c.RequestToToggleMFA(ctx, accessToken, MFATypeAuthenticatorApp, Enable)
	if err := expectOK("request mfa toggle", resp, err); err != nil {
		return "", err
	}
	secret, err := qr.ExtractSecret(resp.Body)
	if err != nil {
		return "", err
	}

	code, err := totp.Now(secret)
	if err != nil {
		return "", err
	}
	resp, err = c.VerifyToggleMFA(ctx, accessToken, MFATypeAuthenticatorApp, Enable, code)
	if err := expectOK("verify mfa toggle", resp, err); err != nil {
		return "", err
	}
	return secret, nil
}

// ResetForgottenPassword runs the forgot/reset pair, answering the reset with
// a code from factor.
func (c *Client) ResetForgottenPassword(ctx context.Context, usernameOrEmail, newPassword string, factor Factor) error {
	resp, err := c.ForgotPassword(ctx, usernameOrEmail)
	if err := expectOK("forgot password", resp, err); err != nil {
		return err
	}
	code, err := factor.Code(ctx)
	if err != nil {
		return fmt.Errorf("reset password code: %w", err)
	}
	resp, err = c.ResetPassword(ctx, ResetPasswordRequest{
		UsernameOrEmail: usernameOrEmail,
		Code:            code,
		Method:          factor.Method,
		Password:        newPassword,
		ConfirmPassword: newPassword,
	})
	return expectOK("reset password", resp, err)
}

// ChangePasswordVerified changes the password and confirms the change with a
// code from factor.
func (c *Client) ChangePasswordVerified(ctx context.Context, accessToken, oldPassword, newPassword string, factor Factor) error {
	resp, err := c.ChangePassword(ctx, accessToken, ChangePasswordRequest{
		OldPassword:     oldPassword,
		Password:        newPassword,
		ConfirmPassword: newPassword,
	})
	if err := expectOK("change password", resp, err); err != nil {
		return err
	}
	code, err := factor.Code(ctx)
	if err != nil {
		return fmt.Errorf("change password code: %w", err)
	}
	resp, err = c.VerifyChangePassword(ctx, accessToken, code, factor.Method)
	return expectOK("verify change password", resp, err)
}

// DeleteAccountVerified deletes the token's account, confirming with a code
// from factor.
func (c *Client) DeleteAccountVerified(ctx context.Context, accessToken, password string, factor Factor) error {
	resp, err := c.DeleteAccount(ctx, accessToken, password)
	if err := expectOK("delete account", resp, err); err != nil {
		return err
	}
	code, err := factor.Code(ctx)
	if err != nil {
		return fmt.Errorf("delete account code: %w", err)
	}
	resp, err = c.VerifyDeleteAccount(ctx, accessToken, code, factor.Method)
	return expectOK("verify delete account", resp, err)
}

func expectOK(step string, resp *Response, err error) error {
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("%s: %w: %d", step, ErrUnexpectedStatus, resp.Status)
	}
	return nil
}
