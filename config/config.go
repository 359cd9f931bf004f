package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/cppla/ledger/ledger"
)

// AppConfig holds environment driven configuration values.
// Secrets have no defaults and must come from the environment or config file.
type AppConfig struct {
	AppPort      string `mapstructure:"app_port"`
	JWTSecret    string `mapstructure:"jwt_secret"`
	ServiceToken string `mapstructure:"service_token"`

	DBDriver    string `mapstructure:"db_driver"`
	DatabaseURI string `mapstructure:"database_uri"`
	DBHost      string `mapstructure:"db_host"`
	DBPort      string `mapstructure:"db_port"`
	DBUser      string `mapstructure:"db_user"`
	DBPassword  string `mapstructure:"db_password"`
	DBName      string `mapstructure:"db_name"`

	// Redis backs the leaderboard cache and token blacklist; empty host disables it.
	RedisHost     string `mapstructure:"redis_host"`
	RedisPort     int    `mapstructure:"redis_port"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPassword string `mapstructure:"redis_password"`

	LogLevel      string `mapstructure:"log_level"`
	LogPath       string `mapstructure:"log_path"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days"`
	LogCompress   bool   `mapstructure:"log_compress"`

	// Gin framework configuration
	GinMode string `mapstructure:"gin_mode"`
	GinPath string `mapstructure:"gin_path"`

	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`

	// Ledger limits
	DailyXPCap             int64  `mapstructure:"daily_xp_cap"`
	DailyPointsCap         int64  `mapstructure:"daily_points_cap"`
	MaxTaskPoints          int64  `mapstructure:"max_task_points"`
	MaxHabitPoints         int64  `mapstructure:"max_habit_points"`
	MaxStreakMultiplier    string `mapstructure:"max_streak_multiplier"`
	LedgerTimezone         string `mapstructure:"ledger_timezone"`
	HistoryPageSize        int    `mapstructure:"history_page_size"`
	LeaderboardSize        int    `mapstructure:"leaderboard_size"`
	LeaderboardCacheSecs   int    `mapstructure:"leaderboard_cache_seconds"`
	AchievementCatalogPath string `mapstructure:"achievement_catalog_path"`
	// StreakSweepAt is the local HH:MM of the nightly streak expiry job.
	StreakSweepAt string `mapstructure:"streak_sweep_at"`
}

var cfg AppConfig
var loaded bool

// keys lists every setting with its environment variable.
var keys = map[string]string{
	"app_port":                  "APP_PORT",
	"jwt_secret":                "JWT_SECRET",
	"service_token":             "SERVICE_TOKEN",
	"db_driver":                 "DB_DRIVER",
	"database_uri":              "DATABASE_URI",
	"db_host":                   "DB_HOST",
	"db_port":                   "DB_PORT",
	"db_user":                   "DB_USER",
	"db_password":               "DB_PASSWORD",
	"db_name":                   "DB_NAME",
	"redis_host":                "REDIS_HOST",
	"redis_port":                "REDIS_PORT",
	"redis_db":                  "REDIS_DB",
	"redis_password":            "REDIS_PASSWORD",
	"log_level":                 "LOG_LEVEL",
	"log_path":                  "LOG_PATH",
	"log_max_size_mb":           "LOG_MAX_SIZE_MB",
	"log_max_backups":           "LOG_MAX_BACKUPS",
	"log_max_age_days":          "LOG_MAX_AGE_DAYS",
	"log_compress":              "LOG_COMPRESS",
	"gin_mode":                  "GIN_MODE",
	"gin_path":                  "GIN_PATH",
	"rate_limit_per_minute":     "RATE_LIMIT_PER_MINUTE",
	"allowed_origins":           "ALLOWED_ORIGINS",
	"daily_xp_cap":              "DAILY_XP_CAP",
	"daily_points_cap":          "DAILY_POINTS_CAP",
	"max_task_points":           "MAX_TASK_POINTS",
	"max_habit_points":          "MAX_HABIT_POINTS",
	"max_streak_multiplier":     "MAX_STREAK_MULTIPLIER",
	"ledger_timezone":           "LEDGER_TIMEZONE",
	"history_page_size":         "HISTORY_PAGE_SIZE",
	"leaderboard_size":          "LEADERBOARD_SIZE",
	"leaderboard_cache_seconds": "LEADERBOARD_CACHE_SECONDS",
	"achievement_catalog_path":  "ACHIEVEMENT_CATALOG_PATH",
	"streak_sweep_at":           "STREAK_SWEEP_AT",
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("app_port", "8080")
	v.SetDefault("db_driver", "mysql")
	v.SetDefault("db_host", "127.0.0.1")
	v.SetDefault("db_port", "3306")
	v.SetDefault("db_user", "root")
	v.SetDefault("db_name", "ledger")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_path", "logs/app.log")
	v.SetDefault("log_max_size_mb", 50)
	v.SetDefault("log_max_backups", 7)
	v.SetDefault("log_max_age_days", 30)
	v.SetDefault("log_compress", true)
	v.SetDefault("gin_mode", "release")
	v.SetDefault("gin_path", "logs/gin.log")
	v.SetDefault("rate_limit_per_minute", 120)
	v.SetDefault("allowed_origins", []string{"*"})

	def := ledger.DefaultPolicy()
	v.SetDefault("daily_xp_cap", def.DailyXPCap)
	v.SetDefault("daily_points_cap", def.DailyPointsCap)
	v.SetDefault("max_task_points", def.MaxTaskPoints)
	v.SetDefault("max_habit_points", def.MaxHabitPoints)
	v.SetDefault("max_streak_multiplier", def.MaxMultiplier.StringFixed(2))
	v.SetDefault("ledger_timezone", "UTC")
	v.SetDefault("history_page_size", def.MaxPageSize)
	v.SetDefault("leaderboard_size", 50)
	v.SetDefault("leaderboard_cache_seconds", 60)
	v.SetDefault("streak_sweep_at", "00:05")
}

// LoadFrom reads the optional JSON file at path, then the environment.
// Precedence: defaults -> file -> environment variables.
func LoadFrom(path string) (AppConfig, error) {
	v := viper.New()
	applyDefaults(v)
	for key, env := range keys {
		if err := v.BindEnv(key, env); err != nil {
			return AppConfig{}, err
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var out AppConfig
	if err := v.Unmarshal(&out); err != nil {
		return AppConfig{}, fmt.Errorf("decode config: %w", err)
	}
	// ALLOWED_ORIGINS may arrive as one comma separated string or already split
	// by the decoder with the spaces still attached.
	out.AllowedOrigins = normalizeList(out.AllowedOrigins)
	if _, err := out.LedgerPolicy(); err != nil {
		return AppConfig{}, err
	}
	return out, nil
}

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	c, err := LoadFrom("config/config.json")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if c.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}
	if c.ServiceToken == "" {
		log.Println("SERVICE_TOKEN is empty; /internal endpoints will reject every call")
	}
	cfg = c
	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// LedgerPolicy converts the ledger settings into a ledger.Policy.
func (c AppConfig) LedgerPolicy() (ledger.Policy, error) {
	p := ledger.DefaultPolicy()
	p.DailyXPCap = c.DailyXPCap
	p.DailyPointsCap = c.DailyPointsCap
	p.MaxTaskPoints = c.MaxTaskPoints
	p.MaxHabitPoints = c.MaxHabitPoints
	if c.HistoryPageSize > 0 {
		p.MaxPageSize = c.HistoryPageSize
	}
	if c.MaxStreakMultiplier != "" {
		m, err := decimal.NewFromString(c.MaxStreakMultiplier)
		if err != nil {
			return p, fmt.Errorf("MAX_STREAK_MULTIPLIER %q: %w", c.MaxStreakMultiplier, err)
		}
		p.MaxMultiplier = m
	}
	if c.LedgerTimezone != "" {
		loc, err := time.LoadLocation(c.LedgerTimezone)
		if err != nil {
			return p, fmt.Errorf("LEDGER_TIMEZONE %q: %w", c.LedgerTimezone, err)
		}
		p.Location = loc
	}
	return p, nil
}

// LeaderboardTTL is how long a cached leaderboard stays valid.
func (c AppConfig) LeaderboardTTL() time.Duration {
	if c.LeaderboardCacheSecs <= 0 {
		return 0
	}
	return time.Duration(c.LeaderboardCacheSecs) * time.Second
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		out = append(out, splitList(item)...)
	}
	return out
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
