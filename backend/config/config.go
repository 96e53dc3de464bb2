package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
)

type SeedDocument struct {
	ID    string `mapstructure:"id"`
	Owner uint64 `mapstructure:"owner"`
}

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Mysql struct {
		// 需要带 parseTime=true
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		// 为空时不启用在线状态和权限缓存；多个地址走集群客户端
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		// 为空时不发送领域事件
		Brokers     []string      `mapstructure:"brokers"`
		Topic       string        `mapstructure:"topic"`
		QueueSize   int           `mapstructure:"queuesize"`
		Workers     int           `mapstructure:"workers"`
		MaxRetry    int           `mapstructure:"maxretry"`
		BaseBackoff time.Duration `mapstructure:"basebackoff"`
		MaxBackoff  time.Duration `mapstructure:"maxbackoff"`
		MaxInFlight int           `mapstructure:"maxinflight"`
	} `mapstructure:"kafka"`
	Auth struct {
		Path string `mapstructure:"path"`
		// 非空时本地校验 JWT
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
	Storage struct {
		Driver string `mapstructure:"driver"`
		// 仅 memory 模式使用
		Documents []SeedDocument `mapstructure:"documents"`
		Users     []uint64       `mapstructure:"users"`
	} `mapstructure:"storage"`
	Collab struct {
		SubscriberBuffer int      `mapstructure:"subscriberbuffer"`
		EditRate         float64  `mapstructure:"editrate"`
		EditBurst        int      `mapstructure:"editburst"`
		MaxConcurrent    int      `mapstructure:"maxconcurrent"`
		AllowOrigins     []string `mapstructure:"alloworigins"`
	} `mapstructure:"collab"`
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 8080)
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("redis.addrs", []string{})
	v.SetDefault("redis.password", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "doc-events")
	v.SetDefault("kafka.queuesize", 10_000)
	v.SetDefault("kafka.workers", 4)
	v.SetDefault("kafka.maxretry", 3)
	v.SetDefault("kafka.basebackoff", 50*time.Millisecond)
	v.SetDefault("kafka.maxbackoff", time.Second)
	v.SetDefault("kafka.maxinflight", 100)
	v.SetDefault("auth.path", "http://localhost:3001")
	v.SetDefault("auth.secret", "")
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("collab.subscriberbuffer", 32)
	v.SetDefault("collab.editrate", 20.0)
	v.SetDefault("collab.editburst", 40)
	v.SetDefault("collab.maxconcurrent", 100)
	v.SetDefault("collab.alloworigins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load 读取 docSyncConfig.yaml；配置文件不存在时只用默认值和环境变量
// 环境变量前缀 DOCSYNC_，例如 DOCSYNC_RUNNING_PORT、DOCSYNC_MYSQL_DSN
func Load(paths ...string) (*Config, error) {
	// .env 只用于本地开发
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigName("docSyncConfig")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		// 兼容从项目根目录或 backend 目录启动
		paths = []string{"./backend/config", "./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("DOCSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverMySQL:
		if c.Mysql.DSN == "" {
			return errors.New("config: storage.driver=mysql requires mysql.dsn")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Running.Port <= 0 || c.Running.Port > 65535 {
		return fmt.Errorf("config: invalid running.port %d", c.Running.Port)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("config: kafka.topic is required when brokers are set")
	}
	return nil
}

// String 打印配置时隐藏密码和密钥
func (c *Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "port=%d storage=%s", c.Running.Port, c.Storage.Driver)
	if c.Mysql.DSN != "" {
		sb.WriteString(" mysql=********")
	}
	fmt.Fprintf(&sb, " redis=%v kafka=%v topic=%s", c.Redis.Addrs, c.Kafka.Brokers, c.Kafka.Topic)
	if c.Auth.Secret != "" {
		sb.WriteString(" auth=local-jwt")
	} else {
		fmt.Fprintf(&sb, " auth=%s", c.Auth.Path)
	}
	fmt.Fprintf(&sb, " log=%s", c.Log.Level)
	return sb.String()
}
