package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voltrade/internal/market"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvConfigPath 指定配置文件路径的环境变量。
	EnvConfigPath     = "VOLTRADE_CONFIG"
	defaultConfigPath = "configs/config.yaml"

	// envPrefix 开头、以 "__" 分隔层级的环境变量覆盖配置项，
	// 例如 VOLTRADE_BACKTEST__SYMBOLS=BTC-USDT,ETH-USDT。
	envPrefix    = "VOLTRADE_"
	envSeparator = "__"
)

// ResolvePath 优先使用显式路径，其次是环境变量，最后是默认路径。
func ResolvePath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return defaultConfigPath
}

// Load 读取配置（含 include 链与环境变量覆盖），填充未显式设置的默认值并校验。
// 文件、解析与校验错误均为 ConfigurationError。
func Load(path string) (*Config, error) {
	sources, err := readSources(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	for _, src := range sources {
		if err := v.MergeConfigMap(src.settings); err != nil {
			return nil, &market.ConfigurationError{Key: "config", Reason: fmt.Sprintf("merge %s: %v", src.path, err)}
		}
	}
	applyEnvOverrides(v, os.Environ())

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, &market.ConfigurationError{Key: "config", Reason: "decode: " + err.Error()}
	}
	setKeys := make(keySet)
	for _, key := range v.AllKeys() {
		setKeys.mark(key)
	}
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// source 是 include 链中的一个文件，settings 已去掉 include 键。
type source struct {
	path     string
	settings map[string]any
}

// readSources 按深度优先展开 include，被包含的文件排在包含者之前，后读入的覆盖先读入的。
// 每个文件只读取一次；重复包含只生效第一次，环形包含报错。
func readSources(path string) ([]source, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &market.ConfigurationError{Key: "config", Reason: "path cannot be empty"}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &market.ConfigurationError{Key: "config", Reason: err.Error()}
	}
	r := &includeReader{done: make(map[string]bool), active: make(map[string]bool)}
	if err := r.visit(abs); err != nil {
		return nil, err
	}
	return r.ordered, nil
}

type includeReader struct {
	done    map[string]bool
	active  map[string]bool
	ordered []source
}

func (r *includeReader) visit(path string) error {
	path = filepath.Clean(path)
	switch {
	case r.active[path]:
		return &market.ConfigurationError{Key: "include", Reason: "cycle detected at " + path}
	case r.done[path]:
		return nil
	}
	r.active[path] = true
	defer delete(r.active, path)

	file := viper.New()
	file.SetConfigFile(path)
	if err := file.ReadInConfig(); err != nil {
		return &market.ConfigurationError{Key: "config", Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	settings := file.AllSettings()
	includes, err := includeList(settings["include"])
	if err != nil {
		return &market.ConfigurationError{Key: "include", Reason: fmt.Sprintf("%s: %v", path, err)}
	}
	delete(settings, "include")

	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := r.visit(inc); err != nil {
			return err
		}
	}
	r.done[path] = true
	r.ordered = append(r.ordered, source{path: path, settings: settings})
	return nil
}

// includeList 接受单个字符串或字符串数组。
func includeList(raw any) ([]string, error) {
	var items []any
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		items = []any{val}
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	case []any:
		items = val
	default:
		return nil, fmt.Errorf("must be a string or string array, got %T", raw)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("entries must be strings, got %T", item)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// applyEnvOverrides 把 VOLTRADE_<SECTION>__<KEY> 形式的环境变量写入 viper；
// 被覆盖的键视为显式设置，不再应用默认值。
func applyEnvOverrides(v *viper.Viper, environ []string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envPrefix) {
			continue
		}
		rest := strings.TrimPrefix(name, envPrefix)
		if !strings.Contains(rest, envSeparator) {
			continue
		}
		key := strings.ToLower(strings.ReplaceAll(rest, envSeparator, "."))
		v.Set(key, value)
	}
}
