package config

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChangeHandler 配置热更新回调
type ChangeHandler func(config *AppConfig)

// ConfigManager 统一配置管理器
type ConfigManager struct {
	mu           sync.RWMutex
	config       *AppConfig
	v            *viper.Viper
	configPath   string
	watchEnabled bool
	watching     bool
	handlers     []ChangeHandler
}

// ConfigManagerOption 配置管理器选项
type ConfigManagerOption func(*ConfigManager)

// WithConfigPath 设置配置文件路径（为空时按搜索路径查找）
func WithConfigPath(path string) ConfigManagerOption {
	return func(cm *ConfigManager) {
		cm.configPath = path
	}
}

// WithWatchEnabled 启用配置文件监控
func WithWatchEnabled(enabled bool) ConfigManagerOption {
	return func(cm *ConfigManager) {
		cm.watchEnabled = enabled
	}
}

// NewConfigManager 创建配置管理器
func NewConfigManager(opts ...ConfigManagerOption) *ConfigManager {
	cm := &ConfigManager{}
	for _, opt := range opts {
		opt(cm)
	}
	return cm
}

// Load 加载配置，已加载时直接返回
func (cm *ConfigManager) Load() (*AppConfig, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.config != nil {
		return cm.config, nil
	}

	config, v, err := cm.read()
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	cm.config = config
	cm.v = v

	// 启用监控
	if cm.watchEnabled {
		cm.watch()
	}

	return config, nil
}

// Get 获取配置（如果未加载则自动加载）
func (cm *ConfigManager) Get() (*AppConfig, error) {
	cm.mu.RLock()
	if cm.config != nil {
		defer cm.mu.RUnlock()
		return cm.config, nil
	}
	cm.mu.RUnlock()

	return cm.Load()
}

// Reload 重新读取配置文件，校验失败时保留原配置
func (cm *ConfigManager) Reload() error {
	config, v, err := cm.read()
	if err != nil {
		return fmt.Errorf("重新加载配置失败: %w", err)
	}

	cm.mu.Lock()
	cm.config = config
	if !cm.watching {
		cm.v = v
	}
	handlers := append([]ChangeHandler(nil), cm.handlers...)
	cm.mu.Unlock()

	for _, h := range handlers {
		h(config)
	}
	return nil
}

// OnChange 注册配置变化回调
func (cm *ConfigManager) OnChange(handler ChangeHandler) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.handlers = append(cm.handlers, handler)
}

// ConfigFileUsed 实际使用的配置文件，未找到时为空
func (cm *ConfigManager) ConfigFileUsed() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.v == nil {
		return ""
	}
	return cm.v.ConfigFileUsed()
}

// GetConfigSummary 获取配置摘要信息
func (cm *ConfigManager) GetConfigSummary() (map[string]interface{}, error) {
	config, err := cm.Get()
	if err != nil {
		return nil, err
	}

	file := cm.ConfigFileUsed()
	if file == "" {
		file = "(defaults)"
	}

	return map[string]interface{}{
		"config_file":      file,
		"capture_interval": config.Capture.Interval.String(),
		"capture_device":   config.Capture.Device,
		"classifier_url":   config.Classifier.BaseURL,
		"documents_dir":    config.Storage.DocumentsDir,
		"credentials_file": config.Storage.CredentialsFile,
		"import_mode":      config.ImportMode().String(),
		"database_enabled": config.Database.Enabled,
		"feed":             config.Feed.Addr + config.Feed.Path,
		"logging_level":    config.Logging.Level,
		"watch_enabled":    cm.watchEnabled,
	}, nil
}

// read 读取并校验配置文件，文件不存在时使用默认值
func (cm *ConfigManager) read() (*AppConfig, *viper.Viper, error) {
	v := newViper(cm.configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	config, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return config, v, nil
}

// watch 监控配置文件变化，调用方持有锁
func (cm *ConfigManager) watch() {
	if cm.v == nil || cm.v.ConfigFileUsed() == "" {
		return
	}
	cm.watching = true

	v := cm.v
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		config, err := decode(v)
		if err != nil {
			log.Printf("[WARNING] config: ignoring invalid change to %s: %v", e.Name, err)
			return
		}

		cm.mu.Lock()
		cm.config = config
		handlers := append([]ChangeHandler(nil), cm.handlers...)
		cm.mu.Unlock()

		log.Printf("[INFO] config: reloaded %s", e.Name)
		for _, h := range handlers {
			h(config)
		}
	})
	v.WatchConfig()
}
