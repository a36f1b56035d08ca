package models

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	ServerAddr string        `yaml:"server_addr"`
	Storage    StorageConfig `yaml:"storage"`
	Media      MediaConfig   `yaml:"media"`
	Image      ImageConfig   `yaml:"image"`
	Kafka      KafkaConfig   `yaml:"kafka"`
	Redis      RedisConfig   `yaml:"redis"`
	Auth       AuthConfig    `yaml:"auth"`
	Log        LogConfig     `yaml:"log"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"` // json or postgres
	DataDir     string `yaml:"data_dir"`
	DatabaseURL string `yaml:"database_url"`
}

type MediaConfig struct {
	UploadRoot    string `yaml:"upload_root"`
	PublicPrefix  string `yaml:"public_prefix"`
	WorksDir      string `yaml:"works_dir"`
	ThumbnailsDir string `yaml:"thumbnails_dir"`
	ClientDir     string `yaml:"client_dir"`
}

type ImageConfig struct {
	MaxWidth          int           `yaml:"max_width"`
	MaxHeight         int           `yaml:"max_height"`
	Quality           int           `yaml:"quality"`
	ThumbnailWidth    int           `yaml:"thumbnail_width"`
	ThumbnailHeight   int           `yaml:"thumbnail_height"`
	ThumbnailQuality  int           `yaml:"thumbnail_quality"`
	VerticalThreshold float64       `yaml:"vertical_threshold"`
	GradientFraction  float64       `yaml:"gradient_fraction"`
	GradientStrength  int           `yaml:"gradient_strength"`
	MaxConcurrent     int64         `yaml:"max_concurrent"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
	ProcessTimeout    time.Duration `yaml:"process_timeout"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	AdminPasswordHash string        `yaml:"admin_password_hash"`
	FrontPasswordHash string        `yaml:"front_password_hash"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	AdminCookie       string        `yaml:"admin_cookie"`
	FrontCookie       string        `yaml:"front_cookie"`
	SecureCookies     bool          `yaml:"secure_cookies"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = ":8080"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "json"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}

	m := &cfg.Media
	if m.UploadRoot == "" {
		m.UploadRoot = "upload"
	}
	if m.PublicPrefix == "" {
		m.PublicPrefix = "/media"
	}
	if m.WorksDir == "" {
		m.WorksDir = "works"
	}
	if m.ThumbnailsDir == "" {
		m.ThumbnailsDir = "thumbnails"
	}
	if m.ClientDir == "" {
		m.ClientDir = "client"
	}

	img := &cfg.Image
	if img.MaxWidth == 0 {
		img.MaxWidth = 1000
	}
	if img.MaxHeight == 0 {
		img.MaxHeight = 3000
	}
	if img.Quality == 0 {
		img.Quality = 85
	}
	if img.ThumbnailWidth == 0 {
		img.ThumbnailWidth = 600
	}
	if img.ThumbnailHeight == 0 {
		img.ThumbnailHeight = 450
	}
	if img.ThumbnailQuality == 0 {
		img.ThumbnailQuality = 85
	}
	if img.VerticalThreshold == 0 {
		img.VerticalThreshold = 1.5
	}
	if img.GradientFraction == 0 {
		img.GradientFraction = 0.4
	}
	if img.GradientStrength == 0 {
		img.GradientStrength = 127
	}
	if img.MaxConcurrent == 0 {
		img.MaxConcurrent = 2
	}
	if img.MaxUploadBytes == 0 {
		img.MaxUploadBytes = 20 << 20
	}
	if img.ProcessTimeout == 0 {
		img.ProcessTimeout = 60 * time.Second
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "portfolio-thumbnails"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "portfolio-thumbnailer"
	}

	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 24 * time.Hour
	}
	if cfg.Auth.AdminCookie == "" {
		cfg.Auth.AdminCookie = "admin_auth_token"
	}
	if cfg.Auth.FrontCookie == "" {
		cfg.Auth.FrontCookie = "front_auth_token"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
