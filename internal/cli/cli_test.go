package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/nickimizell/property-dashboard-sub000/internal/config"
	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/mailsource"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/ratelimit"
	"github.com/nickimizell/property-dashboard-sub000/internal/splitter"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range RootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "ingest", "validate", "migrate", "extract", "match"} {
		assert.Contains(t, names, want)
	}
}

func TestConfigPathFallsBackToEnv(t *testing.T) {
	configPath = ""
	t.Setenv("PROPERTYD_CONFIG", "/etc/propertyd.yaml")
	assert.Equal(t, "/etc/propertyd.yaml", getConfigPath())

	configPath = "local.yaml"
	defer func() { configPath = "" }()
	assert.Equal(t, "local.yaml", getConfigPath())
}

func TestLimiterSelection(t *testing.T) {
	cfg := config.Default().Oracle

	_, ok := newLimiter(cfg, nil).(*ratelimit.SlidingWindow)
	assert.True(t, ok)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	_, ok = newLimiter(cfg, rdb).(*ratelimit.SlidingWindow)
	assert.True(t, ok, "budget stays local unless distributed is requested")

	cfg.DistributedBudget = true
	_, ok = newLimiter(cfg, rdb).(*ratelimit.RedisWindow)
	assert.True(t, ok)

	_, ok = newLimiter(cfg, nil).(*ratelimit.SlidingWindow)
	assert.True(t, ok, "falls back without a client")
}

func TestGatewayWithoutProviderIsUnavailable(t *testing.T) {
	cfg := config.Default().Oracle
	cfg.Provider = "carrier-pigeon"

	gw := newGateway(context.Background(), cfg, nil)
	require.NotNil(t, gw)
	assert.False(t, gw.Available())

	cfg.Provider = "openai"
	cfg.APIKey = ""
	assert.False(t, newGateway(context.Background(), cfg, nil).Available())
}

func TestSpoolFile(t *testing.T) {
	dir := t.TempDir()
	spool := mailsource.NewSpool(dir)

	msg := filepath.Join(t.TempDir(), "msg.json")
	require.NoError(t, os.WriteFile(msg, []byte(`{"id":"m-1","from":"agent@example.com","subject":"Price update","text":"Reduce to $80K"}`), 0o644))

	written, err := spoolFile(spool, msg)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(written))

	emails, err := spool.Fetch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "m-1", emails[0].ID)
	assert.Equal(t, "Price update", emails[0].Subject)
}

func TestSpoolFileRejectsBadInput(t *testing.T) {
	spool := mailsource.NewSpool(t.TempDir())

	noID := filepath.Join(t.TempDir(), "noid.json")
	require.NoError(t, os.WriteFile(noID, []byte(`{"subject":"hi"}`), 0o644))
	_, err := spoolFile(spool, noID)
	assert.ErrorContains(t, err, "neither id nor uid")

	garbage := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(garbage, []byte(`{not json`), 0o644))
	_, err = spoolFile(spool, garbage)
	assert.ErrorContains(t, err, "decode message")

	_, err = spoolFile(spool, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestExtractOutputDropsText(t *testing.T) {
	res := splitter.Result{
		Text:      "full text",
		PageCount: 2,
		Documents: []domain.ExtractedDocument{{Filename: "a.pdf", Text: "page one"}},
	}

	out := extractOutput(res, "application/pdf", false)
	got := out["result"].(splitter.Result)
	assert.Empty(t, got.Text)
	assert.Empty(t, got.Documents[0].Text)
	assert.Equal(t, "a.pdf", got.Documents[0].Filename)
	assert.Equal(t, "application/pdf", out["mime_type"])

	res.Documents = []domain.ExtractedDocument{{Text: "kept"}}
	got = extractOutput(res, "application/pdf", true)["result"].(splitter.Result)
	assert.Equal(t, "full text", got.Text)
	assert.Equal(t, "kept", got.Documents[0].Text)
}
