// 包 config：集中读取运行配置；.env 先注入环境变量，再由 cleanenv 映射到结构体
package config

import (
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config：一次重建或调度进程所需的全部配置
type Config struct {
	Log      Log      `yaml:"log"`
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	Rebuild  Rebuild  `yaml:"rebuild"`
	Schedule Schedule `yaml:"schedule"`
	Metrics  Metrics  `yaml:"metrics"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// Database：源表与目标表位于同一库；CBDB 发布包为 SQLite，也支持导入 PostgreSQL 后运行
type Database struct {
	Driver       string `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
	SQLitePath   string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"latest.db"`
	Host         string `yaml:"host" env:"PG_HOST" env-default:"localhost"`
	Port         int    `yaml:"port" env:"PG_PORT" env-default:"5432"`
	User         string `yaml:"user" env:"PG_USER" env-default:"postgres"`
	Password     string `yaml:"-" env:"PG_PASSWORD"`
	Name         string `yaml:"name" env:"PG_DB" env-default:"cbdb"`
	SSLMode      string `yaml:"ssl_mode" env:"PG_SSLMODE" env-default:"disable"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"PG_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns int    `yaml:"max_idle_conns" env:"PG_MAX_IDLE_CONNS" env-default:"5"`
}

// Redis：可选；Addr 为空时不加锁、不缓存报告
type Redis struct {
	Addr      string        `yaml:"addr" env:"REDIS_ADDR"`
	Password  string        `yaml:"-" env:"REDIS_PASS"`
	DB        int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	LockKey   string        `yaml:"lock_key" env:"REBUILD_LOCK_KEY" env-default:"addr:rebuild:lock"`
	LockTTL   time.Duration `yaml:"lock_ttl" env:"REBUILD_LOCK_TTL" env-default:"30m"`
	ReportKey string        `yaml:"report_key" env:"REBUILD_REPORT_KEY" env-default:"addr:rebuild:last_report"`
}

type Rebuild struct {
	Workers int `yaml:"workers" env:"SEGMENT_WORKERS" env-default:"1"`
}

// Schedule：周期重建，默认每周一 03:00（Asia/Shanghai）
type Schedule struct {
	Weekday  string `yaml:"weekday" env:"SCHEDULE_WEEKDAY" env-default:"monday"`
	Hour     int    `yaml:"hour" env:"SCHEDULE_HOUR" env-default:"3"`
	Timezone string `yaml:"timezone" env:"SCHEDULE_TZ" env-default:"Asia/Shanghai"`
}

// Metrics：Listen 非空时 schedule 命令在该地址提供 /metrics 与 /healthz
type Metrics struct {
	PushgatewayURL string `yaml:"pushgateway_url" env:"PUSHGATEWAY_URL"`
	Job            string `yaml:"job" env:"PUSHGATEWAY_JOB" env-default:"addr_rebuild"`
	Listen         string `yaml:"listen" env:"METRICS_LISTEN"`
}

// Load：读取配置
// 背景：.env 与 data/env/.env 只补充未设置的环境变量；path 非空时读取 YAML 文件，环境变量仍可覆盖。
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(DataEnvFile())
	cfg := &Config{}
	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, errors.Wrap(err, "read config from env")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate：检查取值范围；不检查连接可用性
func (c *Config) Validate() error {
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return errors.New("sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
	default:
		return errors.Errorf("unsupported db driver %q", c.Database.Driver)
	}
	if c.Rebuild.Workers < 1 {
		c.Rebuild.Workers = 1
	}
	if c.Schedule.Hour < 0 || c.Schedule.Hour > 23 {
		return errors.Errorf("schedule hour %d out of range", c.Schedule.Hour)
	}
	if _, err := c.Schedule.ParseWeekday(); err != nil {
		return err
	}
	return nil
}

// ParseWeekday：英文星期名（大小写不敏感，可用前三个字母）
func (s Schedule) ParseWeekday() (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s.Weekday))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, errors.Errorf("unknown schedule weekday %q", s.Weekday)
}

// Location：调度时区；加载失败时返回错误而非静默回退
func (s Schedule) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	return loc, errors.Wrapf(err, "load timezone %s", s.Timezone)
}

// DataEnvFile：部署目录下的附加 .env，与进程目录 .env 同样只补充缺失变量
func DataEnvFile() string {
	if v := os.Getenv("ADDR_ENV_FILE"); v != "" {
		return v
	}
	return "data/env/.env"
}
