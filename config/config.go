package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Publishers PublishersConfig `mapstructure:"publishers"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"` // debug / release
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite / postgres
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"` // 为空则不启用缓存
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	StatsTTL time.Duration `mapstructure:"stats_ttl"`
}

// QueueConfig 发布队列配置
type QueueConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	RetentionDays int           `mapstructure:"retention_days"`
	CleanupCron   string        `mapstructure:"cleanup_cron"` // robfig/cron 表达式
	StuckAfter    time.Duration `mapstructure:"stuck_after"`  // processing 超过该时长视为异常
}

// PublishersConfig 各平台发布器凭据；凭据缺失的平台不会注册
type PublishersConfig struct {
	Wechat      WechatConfig      `mapstructure:"wechat"`
	Zhihu       ZhihuConfig       `mapstructure:"zhihu"`
	Xiaohongshu XiaohongshuConfig `mapstructure:"xiaohongshu"`
	RateLimit   float64           `mapstructure:"rate_limit"` // 每平台每秒发布上限
}

type WechatConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

type ZhihuConfig struct {
	AccessToken string `mapstructure:"access_token"`
	BaseURL     string `mapstructure:"base_url"`
}

type XiaohongshuConfig struct {
	AccessToken string `mapstructure:"access_token"`
	UserID      string `mapstructure:"user_id"`
	BaseURL     string `mapstructure:"base_url"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	AdminUser     string        `mapstructure:"admin_user"`
	AdminPassword string        `mapstructure:"admin_password"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"` // OTLP HTTP endpoint，为空则不启用
	ServiceName string `mapstructure:"service_name"`
}

// Load 读取配置文件并叠加环境变量（前缀 CONTENTOPS_）
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("CONTENTOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件缺失时仅用默认值 + 环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "content_ops.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stats_ttl", 10*time.Second)
	v.SetDefault("queue.poll_interval", time.Minute)
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.retention_days", 30)
	v.SetDefault("queue.cleanup_cron", "0 3 * * *")
	v.SetDefault("queue.stuck_after", 10*time.Minute)
	v.SetDefault("publishers.rate_limit", 1)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.admin_user", "admin")
	v.SetDefault("log.level", "info")
	v.SetDefault("tracing.service_name", "content-ops")
}
