package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faultline/internal/auth"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommandIssuesParseableToken(t *testing.T) {
	t.Setenv("FAULTLINE_INGEST_TOKEN_SECRET", "cli-secret")
	t.Setenv("FAULTLINE_LOG_LEVEL", "error")

	out, err := execute(t, "", "token", "--producer", "shard-3")
	require.NoError(t, err)

	claims, err := auth.ParseToken([]byte("cli-secret"), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "shard-3", claims.Producer)
	assert.Equal(t, "reporter", claims.Role)
	assert.True(t, strings.HasPrefix(claims.JTI, "tok_"))
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	t.Setenv("FAULTLINE_INGEST_TOKEN_SECRET", "cli-secret")
	_, err := execute(t, "", "token", "--producer", "shard-3", "--role", "owner")
	assert.Error(t, err)
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	t.Setenv("FAULTLINE_INGEST_TOKEN_SECRET", "")
	_, err := execute(t, "", "token", "--producer", "shard-3")
	assert.Error(t, err)
}

func TestReportCommandRequiresTransport(t *testing.T) {
	t.Setenv("FAULTLINE_NATS_URL", "")
	_, err := execute(t, "", "report", "panic: boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats_url")
}

func TestReadPayload(t *testing.T) {
	payload, err := readPayload(strings.NewReader("ignored"), []string{"panic: arg"})
	require.NoError(t, err)
	assert.Equal(t, "panic: arg", payload)

	payload, err = readPayload(strings.NewReader("panic: stdin\n"), []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "panic: stdin\n", payload)

	_, err = readPayload(strings.NewReader("  \n"), nil)
	assert.Error(t, err)
}

func TestParseFields(t *testing.T) {
	fields, err := parseFields([]string{"Guild=Lounge", " Shard =0=1"})
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "Guild", fields[0].Name)
	assert.Equal(t, "Lounge", fields[0].Value)
	assert.Equal(t, "Shard", fields[1].Name)
	assert.Equal(t, "0=1", fields[1].Value)
	assert.True(t, fields[1].Inline)

	_, err = parseFields([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseFields([]string{"=x"})
	assert.Error(t, err)
}
