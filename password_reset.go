package authclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ForgotPassword asks the backend to email a reset link. It does not change
// the session state.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	if err := c.ready(); err != nil {
		return err
	}
	email = normalizeEmail(email)
	if err := c.validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("forgot password: invalid email: %v", err)
	}
	if err := c.api.ForgotPassword(ctx, email); err != nil {
		return fmt.Errorf("forgot password: %w", err)
	}
	return nil
}

// ResetPassword sets a new password using the token from the reset email.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := c.ready(); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("reset password: token is required")
	}
	if err := c.validate.Var(newPassword, "required,min=8,max=128"); err != nil {
		return fmt.Errorf("reset password: invalid password: %v", err)
	}
	if err := c.api.ResetPassword(ctx, token, newPassword); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}
