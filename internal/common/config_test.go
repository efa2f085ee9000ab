package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig_IsValid(t *testing.T) {
	config := NewDefaultConfig()

	require.NoError(t, config.Validate())
	assert.True(t, config.API.UseHTTPS)
	assert.False(t, config.Processing.AutoPublish)
	assert.Equal(t, 10, config.Processing.BatchSize)
	assert.Equal(t, "2s", config.API.RequestDelay)
	assert.Equal(t, 3, config.API.MaxRetries)
}

func TestLoadFromFiles_LaterFilesOverride(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.toml", `
[keywords]
main = ["IT導入補助金", "創業支援"]
exclude = ["終了"]

[processing]
batch_size = 5
`)
	override := writeFile(t, dir, "override.toml", `
[processing]
batch_size = 20
auto_publish = true
`)

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, []string{"IT導入補助金", "創業支援"}, config.Keywords.Main)
	assert.Equal(t, []string{"終了"}, config.Keywords.Exclude)
	assert.Equal(t, 20, config.Processing.BatchSize)
	assert.True(t, config.Processing.AutoPublish)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadFromFiles_KeywordFile(t *testing.T) {
	dir := t.TempDir()
	keywords := writeFile(t, dir, "keywords.yaml", `
main:
  - DX推進
exclude:
  - 募集終了
`)
	config := writeFile(t, dir, "grantpost.toml", `
[keywords]
main = ["事業承継"]
file = "`+filepath.ToSlash(keywords)+`"
`)

	cfg, err := LoadFromFiles(config)
	require.NoError(t, err)
	assert.Equal(t, []string{"事業承継", "DX推進"}, cfg.Keywords.Main)
	assert.Equal(t, []string{"募集終了"}, cfg.Keywords.Exclude)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("GRANTPOST_KEYWORDS", "ものづくり補助金, 販路拡大\n")
	t.Setenv("GRANTPOST_BATCH_SIZE", "7")
	t.Setenv("GRANTPOST_API_USE_HTTPS", "false")
	t.Setenv("GRANTPOST_LOG_LEVEL", "debug")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, []string{"ものづくり補助金", "販路拡大"}, config.Keywords.Main)
	assert.Equal(t, 7, config.Processing.BatchSize)
	assert.False(t, config.API.UseHTTPS)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad sort", func(c *Config) { c.Keywords.Sort = "name" }},
		{"bad order", func(c *Config) { c.Keywords.Order = "UP" }},
		{"zero batch", func(c *Config) { c.Processing.BatchSize = 0 }},
		{"bad lease backend", func(c *Config) { c.Lease.Backend = "etcd" }},
		{"bad duration", func(c *Config) { c.API.Timeout = "soon" }},
		{"bad schedule", func(c *Config) { c.Schedule.Fetch = "every hour" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, 3*time.Second, ParseDurationOr("3s", time.Second))
	assert.Equal(t, time.Second, ParseDurationOr("", time.Second))
	assert.Equal(t, time.Second, ParseDurationOr("nope", time.Second))
}

func TestApplyScheme(t *testing.T) {
	got, err := ApplyScheme("https://api.example.test/v1/public/", false)
	require.NoError(t, err)
	assert.Equal(t, "http://api.example.test/v1/public", got)

	got, err = ApplyScheme("http://api.example.test", true)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test", got)

	_, err = ApplyScheme("not a url", true)
	assert.Error(t, err)
}
