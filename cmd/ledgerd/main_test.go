package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/cipherledger/internal/fieldcipher"
	"github.com/MarkoPoloResearchLab/cipherledger/internal/ledgerd"
	"github.com/MarkoPoloResearchLab/cipherledger/internal/transportcipher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseKeygenOutput(test *testing.T, output string) map[string]string {
	test.Helper()
	values := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		name, value, found := strings.Cut(line, "=")
		require.True(test, found, line)
		values[name] = value
	}
	return values
}

func TestKeygenPrintsUsableKeys(test *testing.T) {
	test.Parallel()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"keygen"})
	require.NoError(test, cmd.Execute())

	values := parseKeygenOutput(test, out.String())
	_, err := fieldcipher.ParseKey(values["LEDGERD_FIELD_KEY"])
	require.NoError(test, err)
	_, err = transportcipher.FromIdentity(values["LEDGERD_TRANSPORT_IDENTITY"])
	require.NoError(test, err)
}

func TestSealOpensWithMatchingIdentity(test *testing.T) {
	test.Parallel()
	transport, err := transportcipher.Generate()
	require.NoError(test, err)

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"seal", "--" + flagRecipient, transport.PublicKey(), "ACC-1"})
	require.NoError(test, cmd.Execute())

	opened, err := transport.DecryptInbound(strings.TrimSpace(out.String()))
	require.NoError(test, err)
	assert.Equal(test, "ACC-1", opened)
}

func TestSealRequiresRecipient(test *testing.T) {
	test.Parallel()
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"seal", "ACC-1"})
	require.Error(test, cmd.Execute())
}

func TestLoadConfigReadsEnvironmentAndEnvFile(test *testing.T) {
	envFile := filepath.Join(test.TempDir(), "ledgerd.env")
	require.NoError(test, os.WriteFile(envFile, []byte("LEDGERD_FIELD_KEY=from-env-file\nLEDGERD_LISTEN_ADDR=:7000\n"), 0o600))
	// Restored on cleanup so the value loaded from envFile does not leak.
	test.Setenv("LEDGERD_FIELD_KEY", "")
	require.NoError(test, os.Unsetenv("LEDGERD_FIELD_KEY"))
	test.Setenv("LEDGERD_LISTEN_ADDR", ":9000")
	test.Setenv("LEDGERD_ALLOWED_ORIGINS", "http://a.example, http://b.example")
	test.Setenv("LEDGERD_MASK_STORE_FAILURES", "true")
	test.Setenv("LEDGERD_SHUTDOWN_TIMEOUT", "2s")

	cmd := newRootCommand()
	require.NoError(test, cmd.ParseFlags([]string{"--" + flagEnvFile, envFile, "--" + flagDatabaseURL, "sqlite:///tmp/flag.db"}))
	cfg := ledgerd.Config{}
	require.NoError(test, loadConfig(cmd, &cfg))

	assert.Equal(test, ":9000", cfg.ListenAddr)
	assert.Equal(test, "sqlite:///tmp/flag.db", cfg.DatabaseURL)
	assert.Equal(test, ledgerd.StoreEngineGorm, cfg.StoreEngine)
	assert.Equal(test, "from-env-file", cfg.FieldKey)
	assert.Equal(test, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.True(test, cfg.MaskStoreFailures)
	assert.Equal(test, 2*time.Second, cfg.ShutdownTimeout)
}

func TestLoadEnvFileIgnoresMissingFile(test *testing.T) {
	test.Parallel()
	require.NoError(test, loadEnvFile(filepath.Join(test.TempDir(), "absent.env")))
	require.NoError(test, loadEnvFile(""))
}
