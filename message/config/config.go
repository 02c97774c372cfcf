package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/spf13/viper"
)

type Config struct {
	Server    Server
	Database  Database
	Redis     Redis
	RateLimit RateLimit `mapstructure:"ratelimit"`
	JWT       JWT
	Logger    Logger
	Cors      Cors
}

type Server struct {
	Port     int
	GRPCPort int `mapstructure:"grpc_port"` // 0 表示不开 grpc
}

type Database struct {
	Driver          string        // postgres | mysql
	DSN             string
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type RateLimit struct {
	Store        string        // redis | memory
	BurstLimit   int           `mapstructure:"burst_limit"`
	BurstWindow  time.Duration `mapstructure:"burst_window"`
	Cooldown     time.Duration
	CooldownWait time.Duration `mapstructure:"cooldown_wait"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
}

type JWT struct {
	Secret string
}

type Logger struct {
	Development bool
}

type Cors struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// 默认值，配置文件缺省时生效
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 10008)
	v.SetDefault("server.grpc_port", 50053)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "user=hassin password=12345678 dbname=linkim sslmode=disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.store", "redis")
	v.SetDefault("ratelimit.burst_limit", 5)
	v.SetDefault("ratelimit.burst_window", 60*time.Second)
	v.SetDefault("ratelimit.cooldown", 2*time.Second)
	v.SetDefault("ratelimit.cooldown_wait", 2*time.Second)
	v.SetDefault("ratelimit.store_timeout", 500*time.Millisecond)
	v.SetDefault("logger.development", true)
	v.SetDefault("cors.allow_origins", []string{"http://localhost:8080"})
}

// LoadConfig reads <filename>.yaml from the given search paths. A missing
// file is not an error; defaults and LINKIM_* environment variables apply.
func LoadConfig(filename string, paths ...string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(filename)
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"config", "../config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("LINKIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if c.RateLimit.BurstLimit <= 0 {
		return nil, errors.New("ratelimit.burst_limit must be positive")
	}
	if c.RateLimit.Store != "redis" && c.RateLimit.Store != "memory" {
		return nil, errors.New("ratelimit.store must be redis or memory")
	}
	return &c, nil
}

// Load 读取 config/message.yaml
func Load() (*Config, error) {
	v, err := LoadConfig("message")
	if err != nil {
		return nil, err
	}
	return ParseConfig(v)
}

// Addr 返回监听地址
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

func (c *Config) GRPCAddr() string {
	return ":" + strconv.Itoa(c.Server.GRPCPort)
}

func (c *Config) CorsConfig() cors.Config {
	return cors.Config{
		AllowOrigins:     c.Cors.AllowOrigins, //跨域
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
	}
}
