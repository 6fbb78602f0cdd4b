package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"GrooveGauge/internal/camera"
	"GrooveGauge/internal/sessionlog"
)

const (
	// ConfigName 配置文件名（不含扩展名）
	ConfigName = "groovegauge"
	// EnvPrefix 环境变量前缀，如 GROOVEGAUGE_CAPTURE_INTERVAL=5s
	EnvPrefix = "GROOVEGAUGE"
)

// AppConfig 应用配置
type AppConfig struct {
	Capture    CaptureConfig    `mapstructure:"capture"`
	Camera     CameraConfig     `mapstructure:"camera"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CaptureConfig 采集配置
type CaptureConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	ArchiveVideo bool          `mapstructure:"archive_video"`
	ArchiveDir   string        `mapstructure:"archive_dir"`
	Device       string        `mapstructure:"device"`
}

// CameraConfig 摄像头来源与权限
type CameraConfig struct {
	FramesDir       string        `mapstructure:"frames_dir"`
	SnapshotURL     string        `mapstructure:"snapshot_url"`
	SnapshotTimeout time.Duration `mapstructure:"snapshot_timeout"`
	GrantCamera     bool          `mapstructure:"grant_camera"`
	GrantMicrophone bool          `mapstructure:"grant_microphone"`
}

// ClassifierConfig 分类服务客户端配置
type ClassifierConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	GRPCHealthAddr string        `mapstructure:"grpc_health_addr"`
}

// StorageConfig 本地存储配置
type StorageConfig struct {
	DocumentsDir    string `mapstructure:"documents_dir"`
	CredentialsFile string `mapstructure:"credentials_file"`
	ImportMode      string `mapstructure:"import_mode"`
	ShareCommand    string `mapstructure:"share_command"`
}

// DatabaseConfig 会话归档数据库配置
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// FeedConfig 实时推送配置
type FeedConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// ServerConfig 参考分类服务监听地址
type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// ImportMode 解析后的导入模式
func (c *AppConfig) ImportMode() sessionlog.ImportMode {
	mode, err := sessionlog.ParseImportMode(c.Storage.ImportMode)
	if err != nil {
		return sessionlog.ImportStrict
	}
	return mode
}

// CameraPosition 解析后的设备位置
func (c *AppConfig) CameraPosition() camera.Position {
	pos, err := camera.ParsePosition(c.Capture.Device)
	if err != nil {
		return camera.PositionBack
	}
	return pos
}

// PermissionPolicy 权限策略
func (c *AppConfig) PermissionPolicy() camera.PermissionPolicy {
	return camera.PermissionPolicy{
		Camera:     c.Camera.GrantCamera,
		Microphone: c.Camera.GrantMicrophone,
	}
}

// dataDir 默认数据目录
func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".groovegauge"
	}
	return filepath.Join(home, ".groovegauge")
}

// newViper 创建带搜索路径、环境变量和默认值的viper实例
func newViper(configPath string) *viper.Viper {
	v := viper.New()

	// 配置文件路径和类型
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath(".")
	}

	// 设置环境变量前缀
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaultValues(v)
	return v
}

// setDefaultValues 设置默认值
func setDefaultValues(v *viper.Viper) {
	dir := dataDir()

	// 采集
	v.SetDefault("capture.interval", "2500ms")
	v.SetDefault("capture.archive_video", false)
	v.SetDefault("capture.archive_dir", filepath.Join(dir, "frames"))
	v.SetDefault("capture.device", "back")

	// 摄像头
	v.SetDefault("camera.frames_dir", "")
	v.SetDefault("camera.snapshot_url", "")
	v.SetDefault("camera.snapshot_timeout", "5s")
	v.SetDefault("camera.grant_camera", true)
	v.SetDefault("camera.grant_microphone", true)

	// 分类服务
	v.SetDefault("classifier.base_url", "http://127.0.0.1:3000")
	v.SetDefault("classifier.timeout", "10s")
	v.SetDefault("classifier.max_retries", 0)
	v.SetDefault("classifier.retry_interval", "500ms")
	v.SetDefault("classifier.grpc_health_addr", "")

	// 存储
	v.SetDefault("storage.documents_dir", filepath.Join(dir, "documents"))
	v.SetDefault("storage.credentials_file", filepath.Join(dir, "credentials.json"))
	v.SetDefault("storage.import_mode", "strict")
	v.SetDefault("storage.share_command", "")

	// 数据库
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "groovegauge")
	v.SetDefault("database.sslmode", "disable")

	// 实时推送与参考服务
	v.SetDefault("feed.addr", ":8090")
	v.SetDefault("feed.path", "/ws")
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.grpc_addr", ":3001")

	v.SetDefault("logging.level", "info")
}

// decode 读取viper中的值并校验
func decode(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return &config, nil
}

// validateConfig 验证配置
func validateConfig(config *AppConfig) error {
	if config.Capture.Interval <= 0 {
		return fmt.Errorf("invalid capture interval: %v", config.Capture.Interval)
	}
	if _, err := camera.ParsePosition(config.Capture.Device); err != nil {
		return err
	}
	if config.Camera.FramesDir != "" && config.Camera.SnapshotURL != "" {
		return fmt.Errorf("camera.frames_dir and camera.snapshot_url are mutually exclusive")
	}

	if config.Classifier.BaseURL == "" {
		return fmt.Errorf("classifier.base_url is required")
	}
	if config.Classifier.Timeout <= 0 {
		return fmt.Errorf("invalid classifier timeout: %v", config.Classifier.Timeout)
	}
	if config.Classifier.MaxRetries < 0 {
		return fmt.Errorf("invalid classifier max retries: %d", config.Classifier.MaxRetries)
	}

	if _, err := sessionlog.ParseImportMode(config.Storage.ImportMode); err != nil {
		return err
	}

	if config.Database.Enabled && (config.Database.Port < 1 || config.Database.Port > 65535) {
		return fmt.Errorf("invalid database port: %d", config.Database.Port)
	}

	if !strings.HasPrefix(config.Feed.Path, "/") {
		return fmt.Errorf("invalid feed path: %q", config.Feed.Path)
	}

	switch strings.ToLower(config.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", config.Logging.Level)
	}

	return nil
}
