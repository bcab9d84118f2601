package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/pager"
)

// ErrAuthFailed is returned when the server accepts a login request but
// hands back no token.
var ErrAuthFailed = errors.New("authentication failed")

const loginQuery = `query { auth { login } }`

const currentUserQuery = `query {
	users {
		getCurrent { id email username preferences }
	}
}`

// Login exchanges a username and password, sent as basic auth, for a
// bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (model.Credential, error) {
	data, err := c.post(ctx, "login", loginQuery, func(req *resty.Request) {
		req.SetBasicAuth(username, password)
	})
	if err != nil {
		return "", err
	}
	var token string
	if err := pager.DecodeAt(data, &token, "auth", "login"); err != nil || token == "" {
		return "", fmt.Errorf("login: %w", ErrAuthFailed)
	}
	return model.Credential(token), nil
}

// CurrentUser returns the account cred was issued to.
func (c *Client) CurrentUser(ctx context.Context, cred model.Credential) (*model.User, error) {
	data, err := c.do(ctx, cred, "fetch current user", currentUserQuery)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := pager.DecodeAt(data, &u, "users", "getCurrent"); err != nil {
		return nil, fmt.Errorf("fetch current user: %w", err)
	}
	return &u, nil
}

// ChangePassword replaces the password of username. Tokens issued before
// the change may stop working; log in again with the new password.
func (c *Client) ChangePassword(ctx context.Context, cred model.Credential, username, oldPassword, newPassword string) error {
	q := fmt.Sprintf(`mutation {
	users {
		changePassword(username: %s, oldPassword: %s, newPassword: %s)
	}
}`, gqlString(username), gqlString(oldPassword), gqlString(newPassword))
	_, err := c.do(ctx, cred, "change password", q)
	return err
}
