package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
		MaxConns int32  `yaml:"max_conns"`
		MinConns int32  `yaml:"min_conns"`
	} `yaml:"postgres"`

	Game struct {
		CountdownSeconds int           `yaml:"countdown_seconds"` // 起跑倒數
		StatsInterval    time.Duration `yaml:"stats_interval"`    // 統計輪詢週期
		OutboundBuffer   int           `yaml:"outbound_buffer"`   // 每條連線的外送佇列大小
	} `yaml:"game"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// LoadConfig 載入配置檔案並套用預設值
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 - path 是硬編碼的配置檔案路徑，非使用者輸入
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Postgres.MaxConns == 0 {
		c.Postgres.MaxConns = 10
	}
	if c.Game.CountdownSeconds == 0 {
		c.Game.CountdownSeconds = 10
	}
	if c.Game.StatsInterval == 0 {
		c.Game.StatsInterval = 3 * time.Second
	}
	if c.Game.OutboundBuffer == 0 {
		c.Game.OutboundBuffer = 256
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate 檢查配置的基本合法性
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Game.CountdownSeconds < 0 {
		return fmt.Errorf("invalid countdown: %d", c.Game.CountdownSeconds)
	}
	if c.Game.StatsInterval < 0 {
		return fmt.Errorf("invalid stats interval: %s", c.Game.StatsInterval)
	}
	return nil
}

// Countdown 起跑倒數時間
func (c *Config) Countdown() time.Duration {
	return time.Duration(c.Game.CountdownSeconds) * time.Second
}

// PostgresURL 生成 PostgreSQL 連線字串，pgxpool 與遷移工具共用
func (c *Config) PostgresURL() string {
	// 支援環境變數覆蓋（生產環境常用）
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
	)
}
