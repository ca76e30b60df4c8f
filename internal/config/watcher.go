package config

import (
	"strings"
	"sync"

	"voltrade/internal/logger"
	"voltrade/internal/market"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChangeListener 在配置重新加载成功后收到新配置。
type ChangeListener func(*Config)

// Watcher 监听配置文件变化并在重新加载成功后通知订阅者。
// 加载失败时保留上一份有效配置。
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	current   *Config
	listeners []ChangeListener
}

// Watch 读取配置文件并开始监听 FS 事件。
func Watch(path string) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &market.ConfigurationError{Key: "config", Reason: "watch requires path"}
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	w := &Watcher{path: path, v: v, current: cfg}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.reload(); err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		logger.Infof("config reloaded from %s", evt.Name)
	})
	v.WatchConfig()
	return w, nil
}

// Current 返回当前生效的配置。
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe 注册监听器，并立即收到一次当前配置。
func (w *Watcher) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	cfg := w.current
	w.mu.Unlock()
	fn(cfg)
}

func (w *Watcher) reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = cfg
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}
