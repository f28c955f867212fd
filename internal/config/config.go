package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// TrustedProxies lists the proxy addresses whose forwarding headers
	// are believed when resolving the client address.
	TrustedProxies []string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	// LockTimeout bounds row-lock waits; an expired wait fails with SQLSTATE
	// 55P03 and the share flow retries once.
	LockTimeout time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type StorageConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	BucketPreviews string
	UseSSL         bool
	Region         string
	PresignTTL     time.Duration
}

// SecurityConfig covers cookies, persistent logins and the reset flow.
type SecurityConfig struct {
	SessionCookie      string
	SessionTTL         time.Duration
	RememberCookie     string
	RememberTTL        time.Duration
	RememberMaxDevices int
	CookieSecure       bool
	ResetTokenTTL      time.Duration
	MinPasswordLength  int
	FlowTimeout        time.Duration
	LoginRateLimit     int
	LoginRateWindow    time.Duration
}

type SiteConfig struct {
	BaseURL     string
	LoginPath   string
	HomePath    string
	PublicPaths []string
}

type ShareConfig struct {
	RateLimit         int
	RateWindow        time.Duration
	TokenBytes        int
	SharePath         string
	PreviewPath       string
	DefaultPreviewURL string
}

type WorkerConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	CleanupSpec   string
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Site             SiteConfig
	Share            ShareConfig
	Worker           WorkerConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

// Load reads config.yaml, then CELLARHUB_* environment variables. A .env
// file in the working directory is loaded into the environment first.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("CELLARHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if !strings.HasPrefix(c.Site.LoginPath, "/") {
		return fmt.Errorf("site.loginpath must start with /: %q", c.Site.LoginPath)
	}
	if c.Share.TokenBytes < 24 {
		return fmt.Errorf("share.tokenbytes must be at least 24, got %d", c.Share.TokenBytes)
	}
	if c.Share.RateWindow < time.Second || c.Share.RateLimit <= 0 {
		return fmt.Errorf("share rate limit must be positive with a window of at least 1s")
	}
	if c.Security.MinPasswordLength < 8 {
		return fmt.Errorf("security.minpasswordlength must be at least 8")
	}
	return nil
}

// Defaults returns the configuration Load produces when no file or
// environment overrides are present.
func Defaults() *AppConfig {
	v := viper.New()
	setDefaults(v)
	var cfg AppConfig
	_ = v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.trustedproxies", "")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.locktimeout", "3s")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolsize", 20)
	v.SetDefault("redis.dialtimeout", "5s")
	v.SetDefault("redis.readtimeout", "3s")
	v.SetDefault("redis.writetimeout", "3s")

	v.SetDefault("storage.endpoint", "127.0.0.1:9000")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucketpreviews", "cellarhub-previews")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.presignttl", "1h")

	v.SetDefault("security.sessioncookie", "cellar_session")
	v.SetDefault("security.sessionttl", "120h") // 5 days
	v.SetDefault("security.remembercookie", "remember_me")
	v.SetDefault("security.rememberttl", "120h")
	v.SetDefault("security.remembermaxdevices", 5)
	v.SetDefault("security.cookiesecure", true)
	v.SetDefault("security.resettokenttl", "60m")
	v.SetDefault("security.minpasswordlength", 8)
	v.SetDefault("security.flowtimeout", "10s")
	v.SetDefault("security.loginratelimit", 10)
	v.SetDefault("security.loginratewindow", "15m")

	v.SetDefault("site.baseurl", "http://localhost:8080")
	v.SetDefault("site.loginpath", "/login.php")
	v.SetDefault("site.homepath", "/home.php")
	v.SetDefault("site.publicpaths", "/login.php,/register.php")

	v.SetDefault("share.ratelimit", 5)
	v.SetDefault("share.ratewindow", "1h")
	v.SetDefault("share.tokenbytes", 24)
	v.SetDefault("share.sharepath", "/share_wine.php")
	v.SetDefault("share.previewpath", "/features_og.php")
	v.SetDefault("share.defaultpreviewurl", "/static/og-default.png")

	v.SetDefault("worker.stream", "cellarhub:tasks")
	v.SetDefault("worker.group", "cellarhub-workers")
	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "10s")
	v.SetDefault("worker.cleanupspec", "0 0 */1 * * *")

	v.SetDefault("logging.level", "")
}
