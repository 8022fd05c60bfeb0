package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/quantalab/labauth/params"
	"github.com/spf13/viper"
)

const (
	DefaultListenAddr = ":3000"
	DefaultSiteName   = "QuantaLab"
)

type MySQLConfig struct {
	Dsn             string `mapstructure:"dsn"`
	TablePrefix     string `mapstructure:"tablePrefix"`
	MaxIdleConns    int    `mapstructure:"maxIdleConns"`
	MaxOpenConns    int    `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int    `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int    `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	TLS      bool   `mapstructure:"tls"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	CAFile   string `mapstructure:"caFile"`
}

type MailConfig struct {
	Backend string     `mapstructure:"backend"`
	From    string     `mapstructure:"from"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type LoginConfig struct {
	// MaxAttempts is the number of failures tolerated before a lockout;
	// the lockout triggers on the attempt that reaches this count.
	MaxAttempts     int           `mapstructure:"maxAttempts"`
	LockoutDuration time.Duration `mapstructure:"lockoutDuration"`
}

type SessionConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	CookieName   string        `mapstructure:"cookieName"`
	CookieSecure bool          `mapstructure:"cookieSecure"`
}

type Config struct {
	Debug         bool          `mapstructure:"debug"`
	SiteName      string        `mapstructure:"siteName"`
	BaseURL       string        `mapstructure:"baseURL"`
	ListenAddr    string        `mapstructure:"listenAddr"`
	TemplateDir   string        `mapstructure:"templateDir"`
	AllowOrigins  []string      `mapstructure:"allowOrigins"`
	JWTSecret     string        `mapstructure:"jwtSecret"`
	AdminPassword string        `mapstructure:"adminPassword"`
	Login         LoginConfig   `mapstructure:"login"`
	Session       SessionConfig `mapstructure:"session"`
	Redis         RedisConfig   `mapstructure:"redis"`
	MySQL         MySQLConfig   `mapstructure:"mysql"`
	Mail          MailConfig    `mapstructure:"mail"`
}

func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.SiteName == "" {
		c.SiteName = DefaultSiteName
	}
	if c.Login.MaxAttempts <= 0 {
		c.Login.MaxAttempts = params.DefaultMaxLoginAttempts
	}
	if c.Login.LockoutDuration <= 0 {
		c.Login.LockoutDuration = params.DefaultLockoutDuration
	}
	if c.Session.Timeout <= 0 {
		c.Session.Timeout = params.DefaultSessionTimeout
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = params.SessionCookieName
	}
	return nil
}

// LoadConfig reads the YAML config file and overlays environment variables.
// A missing file is not an error; the server can run entirely from the
// environment (JWT_SECRET, ADMIN_PASSWORD, MAX_LOGIN_ATTEMPTS, ...).
func LoadConfig(filename string) (*Config, error) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		"jwtSecret":             "JWT_SECRET",
		"adminPassword":         "ADMIN_PASSWORD",
		"login.maxAttempts":     "MAX_LOGIN_ATTEMPTS",
		"login.lockoutDuration": "LOCKOUT_DURATION",
		"session.timeout":       "SESSION_TIMEOUT",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
