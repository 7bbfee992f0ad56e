package config

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	App      AppConfig      `mapstructure:"app"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Apple    AppleConfig    `mapstructure:"apple"`
	Google   GoogleConfig   `mapstructure:"google"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int64  `mapstructure:"expire"` // 小时
}

type AppConfig struct {
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

// ScanConfig 扫码链路配置
type ScanConfig struct {
	// 同一张卡两次扫码之间的最小间隔（秒），0 表示关闭防抖
	CooldownSeconds int `mapstructure:"cooldown_seconds"`
	// 单个钱包平台推送的超时时间（秒）
	WalletPushTimeoutSeconds int `mapstructure:"wallet_push_timeout_seconds"`
}

// PushTimeout 钱包推送超时
func (c ScanConfig) PushTimeout() time.Duration {
	if c.WalletPushTimeoutSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.WalletPushTimeoutSeconds) * time.Second
}

// Cooldown 扫码防抖窗口，0 表示关闭
func (c ScanConfig) Cooldown() time.Duration {
	if c.CooldownSeconds <= 0 {
		return 0
	}
	return time.Duration(c.CooldownSeconds) * time.Second
}

// AppleConfig Apple Wallet (PassKit) 配置
type AppleConfig struct {
	TeamID             string `mapstructure:"team_id"`
	PassTypeIdentifier string `mapstructure:"pass_type_identifier"`
	// APNs 推送凭证 (p8 私钥内容 + Key ID)
	APNsKeyID      string `mapstructure:"apns_key_id"`
	APNsPrivateKey string `mapstructure:"apns_private_key"`
	APNsHost       string `mapstructure:"apns_host"` // 默认 https://api.push.apple.com
	// PassKit Web Service 回调鉴权令牌的派生密钥
	AuthTokenSecret string `mapstructure:"auth_token_secret"`
	WebServiceURL   string `mapstructure:"web_service_url"`
}

// Enabled Apple 渠道是否配置完整
func (c AppleConfig) Enabled() bool {
	return c.TeamID != "" && c.PassTypeIdentifier != "" && c.APNsKeyID != "" &&
		c.APNsPrivateKey != "" && c.AuthTokenSecret != ""
}

// GoogleConfig Google Wallet Objects API 配置
type GoogleConfig struct {
	IssuerID string `mapstructure:"issuer_id"`
	// 服务账号凭证
	ServiceAccountEmail string   `mapstructure:"service_account_email"`
	PrivateKey          string   `mapstructure:"private_key"` // RSA PEM
	APIBaseURL          string   `mapstructure:"api_base_url"`
	TokenURL            string   `mapstructure:"token_url"`
	Origins             []string `mapstructure:"origins"` // Save 链接允许的 origin
}

// Enabled Google 渠道是否配置完整
func (c GoogleConfig) Enabled() bool {
	return c.IssuerID != "" && c.ServiceAccountEmail != "" && c.PrivateKey != ""
}

var GlobalConfig Config

// Validate 验证配置
func (c *Config) Validate() error {
	// JWT 配置验证
	if c.JWT.Secret == "" || c.JWT.Secret == "your_super_secret_key" {
		return errors.New("please set a secure JWT secret in production")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	// 数据库配置验证
	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	// Redis 配置验证
	if c.Redis.Addr == "" {
		return errors.New("redis address is required")
	}

	// 两个钱包渠道都可以缺席(降级为不可用)，但配置一半则视为错误
	if c.Apple.TeamID != "" && !c.Apple.Enabled() {
		return errors.New("apple wallet configuration is incomplete")
	}
	if c.Google.IssuerID != "" && !c.Google.Enabled() {
		return errors.New("google wallet configuration is incomplete")
	}

	return nil
}

// LoadConfig 加载配置
func LoadConfig() {
	// 获取环境变量，默认为dev
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 根据环境选择配置文件
	configName := "config"
	if env != "" && env != "dev" {
		configName = "config." + env
	}

	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// 设置默认值
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("jwt.expire", 24)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("app.env", "dev")
	viper.SetDefault("app.debug", true)
	viper.SetDefault("scan.cooldown_seconds", 10)
	viper.SetDefault("scan.wallet_push_timeout_seconds", 3)
	viper.SetDefault("apple.apns_host", "https://api.push.apple.com")
	viper.SetDefault("google.api_base_url", "https://walletobjects.googleapis.com/walletobjects/v1")
	viper.SetDefault("google.token_url", "https://oauth2.googleapis.com/token")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Config file not found, using defaults or env vars: %v", err)
	}

	// 绑定环境变量
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		log.Fatalf("Unable to decode into struct: %v", err)
	}

	// 手动覆盖，以防 viper 无法正确解析复杂结构或环境变量
	if host := os.Getenv("DB_HOST"); host != "" {
		GlobalConfig.Database.Host = host
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		GlobalConfig.Redis.Addr = redisAddr
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		GlobalConfig.JWT.Secret = jwtSecret
	}
	if appleKey := os.Getenv("APPLE_APNS_PRIVATE_KEY"); appleKey != "" {
		GlobalConfig.Apple.APNsPrivateKey = appleKey
	}
	if googleKey := os.Getenv("GOOGLE_WALLET_PRIVATE_KEY"); googleKey != "" {
		GlobalConfig.Google.PrivateKey = googleKey
	}

	// 验证配置
	if err := GlobalConfig.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	log.Printf("Configuration loaded and validated successfully. Environment: %s", GlobalConfig.App.Env)
}
