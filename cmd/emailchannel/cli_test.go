package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/emailchannel/internal/config"
)

const accountsFixture = `
email:
  defaultAccount: work
  accounts:
    work:
      fromAddress: bot@work.com
      imap: {host: imap.work.com, user: bot@work.com, password: secret}
      smtp: {host: smtp.work.com, user: bot@work.com, password: secret}
    personal:
      fromAddress: me@gmail.com
      enabled: false
`

func writeAccountsFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(accountsFixture), 0o600))
	return path
}

func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("LOG_LEVEL", "error")

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), err
}

func TestAccountsCommand(t *testing.T) {
	path := writeAccountsFixture(t)

	out, err := executeCLI(t, "accounts", "--accounts", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Regexp(t, `work\s+bot@work.com\s+true\s+true\s+true`, out)
	assert.Regexp(t, `personal\s+me@gmail.com\s+false\s+false\s+false`, out)
	assert.Contains(t, out, "personal: try imap imap.gmail.com:993 and smtp smtp.gmail.com:587")
}

func TestAccountsCommand_MissingFile(t *testing.T) {
	_, err := executeCLI(t, "accounts", "--accounts", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSendCommand_Validation(t *testing.T) {
	path := writeAccountsFixture(t)

	_, err := executeCLI(t, "send", "--accounts", path, "--text", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "to" not set`)

	_, err = executeCLI(t, "send", "--accounts", path, "--account", "personal", "--to", "a@b.com", "--text", "hi")
	assert.ErrorIs(t, err, config.ErrNotConfigured)

	_, err = executeCLI(t, "send", "--accounts", path, "--to", "a@b.com")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	logger := setupLogger("info", "json", path)
	logger.Info("hello", "key", "value")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
