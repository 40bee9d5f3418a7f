package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmony-graphql/internal/middleware"
)

const models = `
models:
  - name: list
    schema:
      title: string!
`

func writeModels(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "harmony-graphql dev (none)\n", out)
}

func TestSDLCommand(t *testing.T) {
	path := writeModels(t, models)

	out, err := execute(t, "", "sdl", "--models.file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "type List")
	assert.Contains(t, out, "  title: String!")

	raw, err := execute(t, "", "sdl", "--raw", "--models.file", path)
	require.NoError(t, err)
	assert.Contains(t, raw, "listCreate(")
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "", "validate", "--models.file", writeModels(t, models))
	require.NoError(t, err)
	assert.Contains(t, out, "are valid")

	_, err = execute(t, "", "validate", "--models.file", writeModels(t, "models:\n  - name: a\n    schema:\n      x: strng\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strng")

	_, err = execute(t, "", "validate", "--models.file", writeModels(t, models), "--adapters.mock.ids", "serial")
	assert.ErrorContains(t, err, "configuration validation failed")
}

func TestQueryCommand(t *testing.T) {
	path := writeModels(t, models)
	snapshot := filepath.Join(t.TempDir(), "snapshot.json")
	common := []string{"--models.file", path, "--adapters.mock.snapshot_path", snapshot}

	out, err := execute(t, "", append([]string{"query", "--json",
		"-v", `{"title":"groceries"}`,
		`mutation($title: String!) { listCreate(record: {title: $title}) { title } }`}, common...)...)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"listCreate":{"title":"groceries"}}}`, out)

	// The snapshot written on shutdown carries the document into the next run.
	out, err = execute(t, "{ listCount }", append([]string{"query", "--json"}, common...)...)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"listCount":1}}`, out)

	out, err = execute(t, "", append([]string{"query", "{ nope }"}, common...)...)
	require.Error(t, err)
	assert.Contains(t, out, "nope")

	_, err = execute(t, "", append([]string{"query", "-v", "{", "{ listCount }"}, common...)...)
	assert.ErrorContains(t, err, "invalid variables JSON")

	_, err = execute(t, "", append([]string{"query"}, common...)...)
	assert.ErrorContains(t, err, "no query provided")
}

func TestTokenCommand(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	path := writeModels(t, models)
	t.Setenv("HARMONY_SERVER_AUTH_JWT_SECRET", secret)
	t.Setenv("HARMONY_SERVER_AUTH_JWT_AUDIENCE", "harmony")

	out, err := execute(t, "", "token", "--models.file", path, "--subject", "alice", "--db-role", "reader", "--roles", "a, b")
	require.NoError(t, err)

	v, err := middleware.NewJWTVerifier(middleware.JWTConfig{Secret: secret, Audience: "harmony"})
	require.NoError(t, err)
	auth, err := v.Verify(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", auth.Subject)
	assert.Equal(t, "reader", auth.Claims["db_role"])
	assert.Equal(t, []any{"a", "b"}, auth.Claims["roles"])
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	_, err := execute(t, "", "token", "--models.file", writeModels(t, models))
	assert.ErrorContains(t, err, "jwt_secret is not set")
}
