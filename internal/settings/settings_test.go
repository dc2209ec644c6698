package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writeTestSettings lays out a settings tree under a temp root:
// defaults plus an optional user override file.
func writeTestSettings(t *testing.T, userOverride string) string {
	t.Helper()
	root := t.TempDir()

	defaultDir := filepath.Join(root, "settings", "default")
	require.NoError(t, os.MkdirAll(defaultDir, 0o755))

	defaults := `
xi = xi or {}
xi.settings = xi.settings or {}
xi.settings.main =
{
    SERVER_NAME = "Nameless",
    RIVERNE_PORTERS = 120,
    CASKET_DROP_RATE = 0.1,
    USE_ADOULIN_WEAPON_SKILL_CHANGES = true,
}
xi.settings.search =
{
    EXPIRE_AUCTIONS = true,
    EXPIRE_DAYS = 3,
    EXPIRE_INTERVAL = 3600,
}
`
	require.NoError(t, os.WriteFile(filepath.Join(defaultDir, "main.lua"), []byte(defaults), 0o644))

	if userOverride != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, "settings", "user.lua"), []byte(userOverride), 0o644))
	}
	return root
}

func load(t *testing.T, root string) *Engine {
	t.Helper()
	engine, err := Load(root, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func TestLoadsStringSetting(t *testing.T) {
	engine := load(t, writeTestSettings(t, ""))

	value, err := engine.GetString("main.SERVER_NAME")
	require.NoError(t, err)
	assert.Equal(t, "Nameless", value)
}

func TestLoadsIntSetting(t *testing.T) {
	engine := load(t, writeTestSettings(t, ""))

	value, err := engine.GetInt("main.RIVERNE_PORTERS")
	require.NoError(t, err)
	assert.Equal(t, int64(120), value)
}

func TestLoadsBoolSetting(t *testing.T) {
	engine := load(t, writeTestSettings(t, ""))

	value, err := engine.GetBool("main.USE_ADOULIN_WEAPON_SKILL_CHANGES")
	require.NoError(t, err)
	assert.True(t, value)
}

func TestLoadsFloatSetting(t *testing.T) {
	engine := load(t, writeTestSettings(t, ""))

	value, err := engine.GetFloat("main.CASKET_DROP_RATE")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, value, 1e-9)
}

func TestAuctionExpirySettingsShape(t *testing.T) {
	engine := load(t, writeTestSettings(t, ""))

	enabled, err := engine.GetBool("search.EXPIRE_AUCTIONS")
	require.NoError(t, err)
	assert.True(t, enabled)

	days, err := engine.GetInt("search.EXPIRE_DAYS")
	require.NoError(t, err)
	assert.Positive(t, days)

	interval, err := engine.GetSeconds("search.EXPIRE_INTERVAL")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, interval)
}

func TestUserFileOverridesDefault(t *testing.T) {
	override := `xi.settings.main.SERVER_NAME = "Vana'diel"`
	engine := load(t, writeTestSettings(t, override))

	value, err := engine.GetString("main.SERVER_NAME")
	require.NoError(t, err)
	assert.Equal(t, "Vana'diel", value)

	// Setting one key must not disturb its neighbours.
	porters, err := engine.GetInt("main.RIVERNE_PORTERS")
	require.NoError(t, err)
	assert.Equal(t, int64(120), porters)
}

func TestEnvOverrideInt(t *testing.T) {
	t.Setenv("XI_MAIN_FOO_BAR", "9999")
	engine := load(t, writeTestSettings(t, ""))

	value, err := engine.GetInt("main.FOO_BAR")
	require.NoError(t, err)
	assert.Equal(t, int64(9999), value)
}

func TestEnvOverrideBool(t *testing.T) {
	t.Setenv("XI_MAIN_FOO_BAR", "false")
	engine := load(t, writeTestSettings(t, ""))

	value, err := engine.GetBool("main.FOO_BAR")
	require.NoError(t, err)
	assert.False(t, value)
}

func TestEnvOverrideExistingKey(t *testing.T) {
	t.Setenv("XI_SEARCH_EXPIRE_DAYS", "14")
	engine := load(t, writeTestSettings(t, ""))

	value, err := engine.GetInt("search.EXPIRE_DAYS")
	require.NoError(t, err)
	assert.Equal(t, int64(14), value)
}

func TestMissingKey(t *testing.T) {
	engine := load(t, writeTestSettings(t, ""))

	_, err := engine.GetString("main.NO_SUCH_KEY")
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestHas(t *testing.T) {
	engine := load(t, writeTestSettings(t, ""))

	assert.True(t, engine.Has("main.SERVER_NAME"))
	assert.False(t, engine.Has("main.NO_SUCH_KEY"))
}

func TestBadValueType(t *testing.T) {
	engine := load(t, writeTestSettings(t, ""))

	_, err := engine.GetFloat("main.SERVER_NAME")
	assert.ErrorIs(t, err, ErrBadValue)
}

func TestGetUint16Range(t *testing.T) {
	t.Setenv("XI_NETWORK_LOGIN_AUTH_PORT", "54231")
	t.Setenv("XI_NETWORK_BAD_PORT", "70000")
	engine := load(t, writeTestSettings(t, ""))

	port, err := engine.GetUint16("network.LOGIN_AUTH_PORT")
	require.NoError(t, err)
	assert.Equal(t, uint16(54231), port)

	_, err = engine.GetUint16("network.BAD_PORT")
	assert.ErrorIs(t, err, ErrBadValue)
}
