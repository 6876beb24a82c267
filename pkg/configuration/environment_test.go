package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "ONBOARDING_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "onboarding")
	requireMkdirAll(t, sub)

	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(sub))

	_ = os.Unsetenv("ONBOARDING_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("ONBOARDING_TEST_ENV_LOAD"))
}

func TestConfiguration_Defaults(t *testing.T) {
	c := &Configuration{}
	require.NoError(t, env.ParseWithOptions(c, env.Options{Environment: map[string]string{}}))
	require.NoError(t, c.Validate())

	require.Equal(t, "redis", c.Queue.Broker)
	require.Equal(t, 3, c.Queue.MaxAttempts)
	require.Equal(t, 50, c.Cache.LRUSize)
	require.False(t, c.Queue.RetryTerminal)
}

func TestConfiguration_Validate(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown broker", env: map[string]string{"QUEUE_BROKER": "kafka"}},
		{name: "zero attempts", env: map[string]string{"QUEUE_MAX_ATTEMPTS": "0"}},
		{name: "bad directory url", env: map[string]string{"DIRECTORY_BASE_URL": "not a url"}},
		{name: "negative lru", env: map[string]string{"CACHE_LRU_SIZE": "-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Configuration{}
			require.NoError(t, env.ParseWithOptions(c, env.Options{Environment: tc.env}))
			require.Error(t, c.Validate())
		})
	}
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func requireMkdirAll(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
}
