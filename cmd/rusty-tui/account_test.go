package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusty-ci/rusty-tui/internal/config"
)

// accountServer issues jwt-1 for the password s3cret and jwt-2 for new-pw.
type accountServer struct {
	mu       sync.Mutex
	password string
	changes  []string
}

func (s *accountServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.Contains(req.Query, "auth { login }"):
		user, pass, _ := r.BasicAuth()
		switch {
		case user == "ada" && pass == s.password && pass == "s3cret":
			_, _ = w.Write([]byte(`{"data":{"auth":{"login":"jwt-1"}}}`))
		case user == "ada" && pass == s.password && pass == "new-pw":
			_, _ = w.Write([]byte(`{"data":{"auth":{"login":"jwt-2"}}}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errors":[{"message":"invalid credentials"}]}`))
		}
	case strings.Contains(req.Query, "getCurrent"):
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer jwt-") {
			_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"Unauthorized"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"users":{"getCurrent":{"id":"u1","email":"ada@example.com","username":"ada","preferences":{"theme":"dark"}}}}}`))
	case strings.Contains(req.Query, "changePassword"):
		s.changes = append(s.changes, req.Query)
		s.password = "new-pw"
		_, _ = w.Write([]byte(`{"data":{"users":{"changePassword":"ok"}}}`))
	default:
		http.Error(w, "no route", http.StatusNotFound)
	}
}

func newAccountServer(t *testing.T) (*accountServer, *httptest.Server) {
	t.Helper()
	t.Setenv("RUSTY_TOKEN", "")
	acct := &accountServer{password: "s3cret"}
	srv := httptest.NewServer(acct)
	t.Cleanup(srv.Close)
	return acct, srv
}

func savedToken(t *testing.T, path string) string {
	t.Helper()
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	return cfg.Token
}

func TestLoginSavesToken(t *testing.T) {
	_, srv := newAccountServer(t)
	args := baseArgs(t, srv, t.TempDir())
	cfgPath := args[1]

	_, _, err := executeWithInput(t, "wrong\n", append([]string{"login", "-u", "ada"}, args...)...)
	require.Error(t, err)
	assert.Empty(t, savedToken(t, cfgPath))

	out, _, err := executeWithInput(t, "s3cret\n", append([]string{"login", "-u", "ada"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as ada")
	assert.Equal(t, "jwt-1", savedToken(t, cfgPath))

	out, _, err = execute(t, append([]string{"account"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "ada@example.com")
	assert.Contains(t, out, `"theme"`)
	assert.Contains(t, out, `"dark"`)
}

func TestLoginPrintsToken(t *testing.T) {
	_, srv := newAccountServer(t)
	args := baseArgs(t, srv, t.TempDir())

	out, _, err := executeWithInput(t, "s3cret", append([]string{"login", "-u", "ada", "--print"}, args...)...)
	require.NoError(t, err)
	assert.Equal(t, "jwt-1\n", out)
	assert.Empty(t, savedToken(t, args[1]))
}

func TestLoginRequiresUsername(t *testing.T) {
	_, _, err := execute(t, "login")
	assert.ErrorContains(t, err, "--username is required")
}

func TestAccountWithoutToken(t *testing.T) {
	_, srv := newAccountServer(t)
	_, _, err := execute(t, append([]string{"account"}, baseArgs(t, srv, t.TempDir())...)...)
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestAccountPasswdLogsInAgain(t *testing.T) {
	acct, srv := newAccountServer(t)
	args := baseArgs(t, srv, t.TempDir())
	_, _, err := executeWithInput(t, "s3cret\n", append([]string{"login", "-u", "ada"}, args...)...)
	require.NoError(t, err)

	out, _, err := executeWithInput(t, "s3cret\nnew-pw\n", append([]string{"account", "passwd"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "password changed for ada")
	assert.Equal(t, "jwt-2", savedToken(t, args[1]))

	acct.mu.Lock()
	defer acct.mu.Unlock()
	require.Len(t, acct.changes, 1)
	assert.Contains(t, acct.changes[0], `username: "ada"`)
	assert.Contains(t, acct.changes[0], `oldPassword: "s3cret"`)
	assert.Contains(t, acct.changes[0], `newPassword: "new-pw"`)
}

func TestAccountPasswdRejectsEmptyPassword(t *testing.T) {
	_, srv := newAccountServer(t)
	args := append(baseArgs(t, srv, t.TempDir()), "--token", "jwt-1")

	_, _, err := executeWithInput(t, "s3cret\n\n", append([]string{"account", "passwd"}, args...)...)
	assert.ErrorContains(t, err, "must not be empty")
}
