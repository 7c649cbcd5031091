// Package config 提供应用程序的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找；.env 与环境变量可覆盖关键字段
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"             // TOML 配置文件解析库
	"github.com/go-playground/validator/v10" // 配置校验
	"github.com/joho/godotenv"               // .env 文件加载
)

// MainConfig 主配置，本地视图服务的监听信息
type MainConfig struct {
	AppName string `toml:"appName"`                                     // 应用名称，用于日志标识等
	Host    string `toml:"host"`                                        // 本地视图服务监听地址，如 "127.0.0.1"
	Port    int    `toml:"port" validate:"gte=0,lte=65535"`             // 本地视图服务监听端口
	Mode    string `toml:"mode" validate:"omitempty,oneof=dev release"` // 运行模式：dev 同时输出控制台日志
	APIKey  string `toml:"apiKey"`                                      // 本地视图 API 访问口令，留空则使用会话凭证
}

// APIConfig 远端社交服务的访问地址
type APIConfig struct {
	BaseURL   string `toml:"baseUrl" validate:"required,url"` // REST 根地址，如 https://host/api
	SocketURL string `toml:"socketUrl" validate:"required"`   // 实时事件 WebSocket 地址
	Timeout   int    `toml:"timeout" validate:"gte=0"`        // REST 请求超时（秒），默认 10
}

// TransportConfig 实时连接与重连策略
type TransportConfig struct {
	BackoffBaseMs   int     `toml:"backoffBaseMs" validate:"gte=0"`   // 首次重连等待，默认 1000
	BackoffMaxMs    int     `toml:"backoffMaxMs" validate:"gte=0"`    // 重连等待上限，默认 30000
	BackoffFactor   float64 `toml:"backoffFactor" validate:"gte=0"`   // 等待倍数，默认 2
	PingIntervalSec int     `toml:"pingIntervalSec" validate:"gte=0"` // 心跳间隔，默认 25
	WriteTimeoutSec int     `toml:"writeTimeoutSec" validate:"gte=0"` // 单次写超时，默认 10
	EventBuffer     int     `toml:"eventBuffer" validate:"gte=0"`     // 入站事件缓冲
}

// SessionConfig 会话凭证来源与落盘方式
type SessionConfig struct {
	Token       string `toml:"token"`                                                   // 启动时使用的凭证，通常由环境变量注入
	PersistMode string `toml:"persistMode" validate:"omitempty,oneof=none redis mysql"` // 凭证持久化方式
	Secret      string `toml:"secret"`                                                  // 凭证落盘加密口令
}

// MysqlConfig MySQL 数据库连接配置
type MysqlConfig struct {
	Host         string `toml:"host"`         // MySQL 服务器地址
	Port         int    `toml:"port"`         // MySQL 端口，默认 3306
	User         string `toml:"user"`         // 数据库用户名
	Password     string `toml:"password"`     // 数据库密码
	DatabaseName string `toml:"databaseName"` // 数据库名称
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string `toml:"host"`     // Redis 服务器地址
	Port     int    `toml:"port"`     // Redis 端口，默认 6379
	Password string `toml:"password"` // Redis 密码，无密码留空
	Db       int    `toml:"db"`       // Redis 数据库编号，默认 0
	Mirror   bool   `toml:"mirror"`   // 是否把未读数和在线集合镜像到 Redis
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`    // 日志文件存储目录
	FileName   string `toml:"fileName"`   // 日志文件名
	MaxSize    int    `toml:"maxSize"`    // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"` // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`     // 保留旧日志文件的最大天数
	Level      string `toml:"level"`      // 日志级别：debug, info, warn, error
}

// KafkaConfig 变更事件广播配置
type KafkaConfig struct {
	MessageMode string `toml:"messageMode" validate:"omitempty,oneof=channel kafka"` // "channel" 进程内广播，"kafka" 经 Kafka 分发
	HostPort    string `toml:"hostPort"`                                             // Kafka 服务器地址，如 "localhost:9092"
	ChangeTopic string `toml:"changeTopic"`                                          // 变更事件主题
	GroupID     string `toml:"groupId"`                                              // 消费组
	Timeout     int    `toml:"timeout"`                                              // 写超时（秒）
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"` // 节点 ID，范围 0-1023
}

// Config 应用程序总配置，聚合所有子配置
type Config struct {
	MainConfig      `toml:"mainConfig"`
	APIConfig       `toml:"apiConfig"`
	TransportConfig `toml:"transportConfig"`
	SessionConfig   `toml:"sessionConfig"`
	MysqlConfig     `toml:"mysqlConfig"`
	RedisConfig     `toml:"redisConfig"`
	LogConfig       `toml:"logConfig"`
	KafkaConfig     `toml:"kafkaConfig"`
	SnowflakeConfig `toml:"snowflakeConfig"`
}

// 可覆盖配置的环境变量
const (
	EnvSessionToken = "KAMA_SESSION_TOKEN"
	EnvAPIBaseURL   = "KAMA_API_BASE_URL"
	EnvSocketURL    = "KAMA_SOCKET_URL"
	EnvMessageMode  = "KAMA_MESSAGE_MODE"
	EnvSessionKey   = "KAMA_SESSION_SECRET"
)

// config 全局配置单例，延迟加载
var config *Config

// LoadConfig 从多个候选路径加载配置文件
// 按顺序尝试加载，找到第一个可用的配置文件即停止
func LoadConfig(cfg *Config) error {
	paths := []string{
		"configs/config_local.toml",
		"configs/config.toml",
		"../../configs/config_local.toml",
		"../../configs/config.toml",
	}

	for _, path := range paths {
		if _, err := toml.DecodeFile(path, cfg); err == nil {
			return nil
		}
	}
	return fmt.Errorf("could not find configuration file in any of the search paths")
}

// ApplyEnv 用 .env 和环境变量覆盖配置
// .env 不存在时忽略；已存在的环境变量优先于 .env
func (c *Config) ApplyEnv() {
	_ = godotenv.Load(".env")
	if v := os.Getenv(EnvSessionToken); v != "" {
		c.SessionConfig.Token = v
	}
	if v := os.Getenv(EnvAPIBaseURL); v != "" {
		c.APIConfig.BaseURL = v
	}
	if v := os.Getenv(EnvSocketURL); v != "" {
		c.APIConfig.SocketURL = v
	}
	if v := os.Getenv(EnvMessageMode); v != "" {
		c.KafkaConfig.MessageMode = v
	}
	if v := os.Getenv(EnvSessionKey); v != "" {
		c.SessionConfig.Secret = v
	}
}

// ApplyDefaults 为未设置的字段填充默认值
func (c *Config) ApplyDefaults() {
	if c.AppName == "" {
		c.AppName = "kama_social_client"
	}
	if c.MainConfig.Host == "" {
		c.MainConfig.Host = "127.0.0.1"
	}
	if c.MainConfig.Port == 0 {
		c.MainConfig.Port = 8010
	}
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.APIConfig.Timeout == 0 {
		c.APIConfig.Timeout = 10
	}
	if c.BackoffBaseMs == 0 {
		c.BackoffBaseMs = 1000
	}
	if c.BackoffMaxMs == 0 {
		c.BackoffMaxMs = 30000
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = 2
	}
	if c.PingIntervalSec == 0 {
		c.PingIntervalSec = 25
	}
	if c.WriteTimeoutSec == 0 {
		c.WriteTimeoutSec = 10
	}
	if c.PersistMode == "" {
		c.PersistMode = "none"
	}
	if c.MessageMode == "" {
		c.MessageMode = "channel"
	}
	if c.ChangeTopic == "" {
		c.ChangeTopic = "kama_social_changes"
	}
	if c.GroupID == "" {
		c.GroupID = "kama_social_client"
	}
	if c.KafkaConfig.Timeout == 0 {
		c.KafkaConfig.Timeout = 1
	}
}

// Validate 校验配置是否完整
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// RequestTimeout REST 请求超时
func (c *APIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// GetConfig 获取全局配置实例（单例模式）
// 首次调用时会自动加载配置文件、环境变量和默认值
func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig(config) // 找不到配置文件时使用默认值与环境变量
		config.ApplyEnv()
		config.ApplyDefaults()
	}
	return config
}
