package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// MailConfig 定义一次性邮箱的核心业务配置
type MailConfig struct {
	Domains    []string      // 可用于创建一次性地址的域名列表
	DefaultTTL time.Duration // 地址默认生存时间，过期后由清扫器回收
	MaxTTL     time.Duration // 单次续期后允许的最长剩余生存时间
}

// SMTPConfig 定义 SMTP 邮件接收服务器的配置
type SMTPConfig struct {
	BindAddr       string        // SMTP 服务监听地址，格式 "host:port"，默认 ":25"
	Domain         string        // SMTP 服务器域名，用于 HELO/EHLO 响应
	MaxMessageSize int64         // 单封邮件最大字节数
	ReadTimeout    time.Duration // 读超时
	WriteTimeout   time.Duration // 写超时
	RatePerSecond  float64       // 单连接速率限制（连接/秒）
	RateBurst      int           // 速率限制突发量
	MaxConnections int           // 最大并发 SMTP 连接数
}

// RelayConfig 定义出站投递配置
type RelayConfig struct {
	Provider    string        // 出站投递实现: "ses" 或 "stdout"
	Region      string        // SES 区域，如 "us-east-1"
	MaxRetries  int           // 单封邮件投递重试次数
	RetryDelay  time.Duration // 重试基础退避时间
	SendTimeout time.Duration // 单次投递超时
}

// SweepConfig 定义过期地址清扫配置
type SweepConfig struct {
	Interval time.Duration // 清扫周期，默认 5 分钟
	PageSize int           // 单页扫描的过期地址数量
}

// StorageConfig 定义存储后端配置
type StorageConfig struct {
	Backend  string // 元数据存储后端: "memory"、"sql" 或 "redis"
	BlobPath string // 原始邮件文件存储根目录
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空表示只输出到标准输出
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 存储后端配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// JWTConfig 定义所有者令牌的签发与验证配置
type JWTConfig struct {
	Secret string        // JWT 签名密钥，必须至少 32 字符
	Issuer string        // JWT 签发者标识，默认 "dropmail"
	Expiry time.Duration // 所有者令牌有效期，默认 7 天
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig   // HTTP 服务器配置
	Mail     MailConfig     // 一次性邮箱业务配置
	SMTP     SMTPConfig     // SMTP 接收服务配置
	Relay    RelayConfig    // 出站投递配置
	Sweep    SweepConfig    // 过期清扫配置
	Storage  StorageConfig  // 存储后端配置
	CORS     CORSConfig     // 跨域配置
	Log      LogConfig      // 日志配置
	Database DatabaseConfig // 数据库配置
	Redis    RedisConfig    // Redis 配置
	JWT      JWTConfig      // 所有者令牌配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: DROPMAIL_
// 例如: DROPMAIL_SERVER_HOST, DROPMAIL_JWT_SECRET
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("dropmail")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("mail.domains", "drop.mail")
	viper.SetDefault("mail.default_ttl", "1h")
	viper.SetDefault("mail.max_ttl", "72h")
	viper.SetDefault("smtp.bind_addr", ":25")
	viper.SetDefault("smtp.domain", "drop.mail")
	viper.SetDefault("smtp.max_message_size", 10*1024*1024)
	viper.SetDefault("smtp.read_timeout", "60s")
	viper.SetDefault("smtp.write_timeout", "60s")
	viper.SetDefault("smtp.rate_per_second", 5.0)
	viper.SetDefault("smtp.rate_burst", 10)
	viper.SetDefault("smtp.max_connections", 100)
	viper.SetDefault("relay.provider", "stdout")
	viper.SetDefault("relay.region", "us-east-1")
	viper.SetDefault("relay.max_retries", 3)
	viper.SetDefault("relay.retry_delay", "1s")
	viper.SetDefault("relay.send_timeout", "30s")
	viper.SetDefault("sweep.interval", "5m")
	viper.SetDefault("sweep.page_size", 100)
	viper.SetDefault("storage.backend", "memory")
	viper.SetDefault("storage.blob_path", "./data/mails")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("database.type", "mysql")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "dropmail")
	viper.SetDefault("jwt.expiry", "168h")

	defaultTTL, err := time.ParseDuration(viper.GetString("mail.default_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid mail.default_ttl: %w", err)
	}

	maxTTL, err := time.ParseDuration(viper.GetString("mail.max_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid mail.max_ttl: %w", err)
	}
	if maxTTL < defaultTTL {
		return nil, fmt.Errorf("mail.max_ttl must not be shorter than mail.default_ttl")
	}

	domainList := parseDomains(viper.GetString("mail.domains"))
	if len(domainList) == 0 {
		return nil, fmt.Errorf("mail.domains must not be empty")
	}

	sweepInterval, err := time.ParseDuration(viper.GetString("sweep.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid sweep.interval: %w", err)
	}

	sweepPageSize := viper.GetInt("sweep.page_size")
	if sweepPageSize <= 0 {
		sweepPageSize = 100
	}

	backend := viper.GetString("storage.backend")
	switch backend {
	case "memory", "sql", "redis":
	default:
		return nil, fmt.Errorf("unsupported storage.backend: %s (supported: memory, sql, redis)", backend)
	}

	relayProvider := viper.GetString("relay.provider")
	switch relayProvider {
	case "ses", "stdout":
	default:
		return nil, fmt.Errorf("unsupported relay.provider: %s (supported: ses, stdout)", relayProvider)
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	readTimeout, err := time.ParseDuration(viper.GetString("smtp.read_timeout"))
	if err != nil {
		readTimeout = 60 * time.Second
	}

	writeTimeout, err := time.ParseDuration(viper.GetString("smtp.write_timeout"))
	if err != nil {
		writeTimeout = 60 * time.Second
	}

	retryDelay, err := time.ParseDuration(viper.GetString("relay.retry_delay"))
	if err != nil {
		retryDelay = time.Second
	}

	sendTimeout, err := time.ParseDuration(viper.GetString("relay.send_timeout"))
	if err != nil {
		sendTimeout = 30 * time.Second
	}

	jwtExpiry, err := time.ParseDuration(viper.GetString("jwt.expiry"))
	if err != nil {
		jwtExpiry = 168 * time.Hour
	}

	jwtSecret := viper.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set DROPMAIL_JWT_SECRET environment variable")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Mail: MailConfig{
			Domains:    domainList,
			DefaultTTL: defaultTTL,
			MaxTTL:     maxTTL,
		},
		SMTP: SMTPConfig{
			BindAddr:       viper.GetString("smtp.bind_addr"),
			Domain:         viper.GetString("smtp.domain"),
			MaxMessageSize: viper.GetInt64("smtp.max_message_size"),
			ReadTimeout:    readTimeout,
			WriteTimeout:   writeTimeout,
			RatePerSecond:  viper.GetFloat64("smtp.rate_per_second"),
			RateBurst:      viper.GetInt("smtp.rate_burst"),
			MaxConnections: viper.GetInt("smtp.max_connections"),
		},
		Relay: RelayConfig{
			Provider:    relayProvider,
			Region:      viper.GetString("relay.region"),
			MaxRetries:  viper.GetInt("relay.max_retries"),
			RetryDelay:  retryDelay,
			SendTimeout: sendTimeout,
		},
		Sweep: SweepConfig{
			Interval: sweepInterval,
			PageSize: sweepPageSize,
		},
		Storage: StorageConfig{
			Backend:  backend,
			BlobPath: viper.GetString("storage.blob_path"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: jwtSecret,
			Issuer: viper.GetString("jwt.issuer"),
			Expiry: jwtExpiry,
		},
	}

	return cfg, nil
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 如果文件不存在，静默失败（.env 是可选的）；
// 已存在的环境变量优先级更高，不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
