package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string
	LogMode  string

	DBDriver string
	DBDSN    string

	AuthHMACSecret  string
	EnableLocalAuth bool
	AdminUser       string
	AdminPassHash   string // bcrypt

	CORSOrigins []string

	// Report cache; disabled when RedisAddr is empty.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ReportCacheTTL time.Duration

	RequestTimeout time.Duration
}

// Load reads configuration with precedence env > config file > defaults.
// path may be empty; CONFIG_FILE is consulted then, and a missing file is
// not an error.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("mode", string(ModeOffline))
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_mode", "")
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_dsn", "")
	v.SetDefault("auth_hmac_secret", "dev-secret-change-me")
	v.SetDefault("enable_local_auth", true)
	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_pass_hash", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji")
	v.SetDefault("cors_origins", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("report_cache_ttl", "5m")
	v.SetDefault("request_timeout", "30s")

	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config_file")
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	mode := Mode(strings.ToLower(v.GetString("mode")))
	logMode := v.GetString("log_mode")
	if logMode == "" {
		logMode = "dev"
		if mode == ModeOnline {
			logMode = "prod"
		}
	}
	origins := csv(v.GetString("cors_origins"))
	if len(origins) == 0 {
		if mode == ModeOnline {
			origins = []string{"https://lms.mindengage.ai"}
		} else {
			origins = []string{"http://localhost:3000", "http://localhost:3010", "http://localhost:3020"}
		}
	}

	cfg := Config{
		Mode:            mode,
		HTTPAddr:        v.GetString("http_addr"),
		LogMode:         logMode,
		DBDriver:        v.GetString("db_driver"),
		DBDSN:           v.GetString("db_dsn"),
		AuthHMACSecret:  v.GetString("auth_hmac_secret"),
		EnableLocalAuth: v.GetBool("enable_local_auth"),
		AdminUser:       v.GetString("admin_user"),
		AdminPassHash:   v.GetString("admin_pass_hash"),
		CORSOrigins:     origins,
		RedisAddr:       v.GetString("redis_addr"),
		RedisPassword:   v.GetString("redis_password"),
		RedisDB:         v.GetInt("redis_db"),
		ReportCacheTTL:  v.GetDuration("report_cache_ttl"),
		RequestTimeout:  v.GetDuration("request_timeout"),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeOffline, ModeOnline:
	default:
		return fmt.Errorf("config: MODE must be offline or online, got %q", c.Mode)
	}
	if c.Mode == ModeOnline && (c.AuthHMACSecret == "" || c.AuthHMACSecret == "dev-secret-change-me") {
		return errors.New("config: AUTH_HMAC_SECRET must be set in online mode")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: REQUEST_TIMEOUT must be positive")
	}
	return nil
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
