package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// EnvPrefix is the prefix for environment overrides. A variable named
// XI_NETWORK_LOGIN_AUTH_PORT sets xi.settings.network.LOGIN_AUTH_PORT.
const EnvPrefix = "XI"

var (
	// ErrMissingKey is returned when a settings key does not exist.
	ErrMissingKey = errors.New("missing settings key")
	// ErrBadValue is returned when a settings value cannot be converted
	// to the requested type.
	ErrBadValue = errors.New("cannot convert settings value")
)

// Engine holds the flattened xi.settings namespace loaded from the Lua
// settings scripts. Values are read once at startup; the engine itself is
// read-only after Load and safe for concurrent use.
type Engine struct {
	state  *lua.LState
	logger *zap.Logger
	values map[string]lua.LValue
}

// Load executes every Lua file under <root>/settings/default and then
// <root>/settings (sorted by name, later files override earlier ones),
// applies XI_* environment overrides and flattens the two-level
// xi.settings table into a "section.KEY" map.
func Load(root string, logger *zap.Logger) (*Engine, error) {
	e := &Engine{
		state:  lua.NewState(),
		logger: logger.Named("Settings"),
		values: make(map[string]lua.LValue),
	}

	if err := e.bootstrap(); err != nil {
		e.state.Close()
		return nil, fmt.Errorf("failed to bootstrap lua state: %w", err)
	}

	// Defaults first, user overrides second. The user directory is
	// optional; a fresh checkout only ships defaults.
	if err := e.loadDir(filepath.Join(root, "settings", "default"), true); err != nil {
		e.state.Close()
		return nil, err
	}
	if err := e.loadDir(filepath.Join(root, "settings"), false); err != nil {
		e.state.Close()
		return nil, err
	}

	if err := e.applyEnv(os.Environ()); err != nil {
		e.state.Close()
		return nil, err
	}

	if err := e.flatten(); err != nil {
		e.state.Close()
		return nil, err
	}

	e.logger.Info("Settings loaded", zap.Int("keys", len(e.values)))
	return e, nil
}

// Close releases the underlying Lua state.
func (e *Engine) Close() {
	e.state.Close()
}

// bootstrap prepares the shared table hierarchy and redirects Lua's print
// into the server log so settings scripts cannot write to stdout directly.
func (e *Engine) bootstrap() error {
	e.state.SetGlobal("print", e.state.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		e.logger.Info(strings.Join(parts, " "), zap.String("source", "lua"))
		return 0
	}))

	return e.state.DoString(`
		xi = xi or {}
		xi.settings = xi.settings or {}
	`)
}

// loadDir executes all *.lua files in dir, sorted by name. Non-lua files
// are ignored. When required is false a missing directory is not an error.
func (e *Engine) loadDir(dir string, required bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) && !required {
			e.logger.Debug("Settings directory not present, skipping", zap.String("dir", dir))
			return nil
		}
		return fmt.Errorf("failed to read settings directory %s: %w", dir, err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	for _, path := range paths {
		e.logger.Debug("Executing settings script", zap.String("path", path))
		if err := e.state.DoFile(path); err != nil {
			return fmt.Errorf("failed to execute settings script %s: %w", path, err)
		}
	}
	return nil
}

// applyEnv maps XI_<SECTION>_<KEY> variables onto xi.settings.<section>.<KEY>.
// The section is the first underscore-delimited token lowercased; the rest
// of the name is used verbatim, underscores included.
func (e *Engine) applyEnv(environ []string) error {
	settingsTable, err := e.settingsTable()
	if err != nil {
		return err
	}

	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		rest, found := strings.CutPrefix(name, EnvPrefix+"_")
		if !found {
			continue
		}
		section, key, ok := strings.Cut(rest, "_")
		if !ok || section == "" || key == "" {
			continue
		}
		section = strings.ToLower(section)

		sectionTable, ok := e.state.GetField(settingsTable, section).(*lua.LTable)
		if !ok {
			sectionTable = e.state.NewTable()
			e.state.SetField(settingsTable, section, sectionTable)
		}
		e.state.SetField(sectionTable, key, luaValue(value))
		e.logger.Debug("Applied settings override from environment",
			zap.String("key", section+"."+key))
	}
	return nil
}

// flatten walks the two-level xi.settings table and records every scalar
// as "section.KEY". Deeper nesting is not part of the settings contract.
func (e *Engine) flatten() error {
	settingsTable, err := e.settingsTable()
	if err != nil {
		return err
	}

	settingsTable.ForEach(func(sectionKey, sectionValue lua.LValue) {
		section, ok := sectionKey.(lua.LString)
		if !ok {
			return
		}
		sectionTable, ok := sectionValue.(*lua.LTable)
		if !ok {
			return
		}
		sectionTable.ForEach(func(innerKey, innerValue lua.LValue) {
			key, ok := innerKey.(lua.LString)
			if !ok {
				return
			}
			e.values[string(section)+"."+string(key)] = innerValue
		})
	})
	return nil
}

func (e *Engine) settingsTable() (*lua.LTable, error) {
	xi, ok := e.state.GetGlobal("xi").(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("global xi is not a table")
	}
	settingsTable, ok := e.state.GetField(xi, "settings").(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("xi.settings is not a table")
	}
	return settingsTable, nil
}

// luaValue converts an environment string into the most specific Lua
// value: integer, then float, then bool, else string.
func luaValue(s string) lua.LValue {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return lua.LNumber(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return lua.LNumber(f)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return lua.LBool(b)
	}
	return lua.LString(s)
}

func (e *Engine) lookup(key string) (lua.LValue, error) {
	value, ok := e.values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	return value, nil
}

// GetString returns the value at key as a string. Numbers are formatted,
// which matches how the settings scripts historically mixed the two.
func (e *Engine) GetString(key string) (string, error) {
	value, err := e.lookup(key)
	if err != nil {
		return "", err
	}
	switch v := value.(type) {
	case lua.LString:
		return string(v), nil
	case lua.LNumber:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%w: %s is %s, want string", ErrBadValue, key, value.Type())
	}
}

// GetBool returns the value at key as a bool. Numeric values follow the
// old 0/1 convention.
func (e *Engine) GetBool(key string) (bool, error) {
	value, err := e.lookup(key)
	if err != nil {
		return false, err
	}
	switch v := value.(type) {
	case lua.LBool:
		return bool(v), nil
	case lua.LNumber:
		return v != 0, nil
	default:
		return false, fmt.Errorf("%w: %s is %s, want bool", ErrBadValue, key, value.Type())
	}
}

// GetInt returns the value at key as an int64.
func (e *Engine) GetInt(key string) (int64, error) {
	value, err := e.lookup(key)
	if err != nil {
		return 0, err
	}
	switch v := value.(type) {
	case lua.LNumber:
		return int64(v), nil
	case lua.LString:
		n, parseErr := strconv.ParseInt(string(v), 10, 64)
		if parseErr != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrBadValue, key, parseErr)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s is %s, want integer", ErrBadValue, key, value.Type())
	}
}

// GetUint16 returns the value at key as a uint16, typically a port.
func (e *Engine) GetUint16(key string) (uint16, error) {
	n, err := e.GetInt(key)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 65535 {
		return 0, fmt.Errorf("%w: %s: %d out of uint16 range", ErrBadValue, key, n)
	}
	return uint16(n), nil
}

// GetFloat returns the value at key as a float64.
func (e *Engine) GetFloat(key string) (float64, error) {
	value, err := e.lookup(key)
	if err != nil {
		return 0, err
	}
	v, ok := value.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("%w: %s is %s, want number", ErrBadValue, key, value.Type())
	}
	return float64(v), nil
}

// GetSeconds reads an integer number of seconds and returns it as a
// time.Duration.
func (e *Engine) GetSeconds(key string) (time.Duration, error) {
	n, err := e.GetInt(key)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

// GetMillis reads an integer number of milliseconds and returns it as a
// time.Duration.
func (e *Engine) GetMillis(key string) (time.Duration, error) {
	n, err := e.GetInt(key)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}

// Has reports whether key exists in the loaded namespace.
func (e *Engine) Has(key string) bool {
	_, ok := e.values[key]
	return ok
}
