package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int
}
type AdminHTTP struct {
	Host string
	Port int
}

type App struct {
	Name  string
	Env   string
	HTTP  HTTP
	Admin AdminHTTP
}

type Log struct {
	Level string
	JSON  bool
}

type JWT struct {
	Secret            string
	Issuer            string
	AccessTokenTTLMin int
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DB struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	LogLevel           string
}

// Auth holds account policy: which roles exist, whether open
// registration is allowed, and how candidate passwords are judged.
type Auth struct {
	DefaultRole         string              `mapstructure:"default_role"`
	AdminRole           string              `mapstructure:"admin_role"`
	RegisterEnabled     bool                `mapstructure:"register_enabled"`
	RequireVerification bool                `mapstructure:"require_verification"`
	PasswordPattern     string              `mapstructure:"password_pattern"`
	PasswordMessage     string              `mapstructure:"password_message"`
	TokenTTLHours       int                 `mapstructure:"token_ttl_hours"`
	Roles               map[string][]string `mapstructure:"roles"` // role -> subroles, overrides built-ins
}

// Mail configures the SMTP sender. An empty host disables email; the
// service then runs without verification/reset mails.
type Mail struct {
	Host          string `mapstructure:"host"` // host:port
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	SenderAddress string `mapstructure:"sender_address"` // RFC 5322, e.g. `Accounts <noreply@example.com>`
	SkipVerify    bool   `mapstructure:"skip_verify"`
	WebAddress    string `mapstructure:"web_address"` // base URL used in email links
}

type Avatar struct {
	Host string `mapstructure:"host"` // identicon provider
}

type Config struct {
	App    App
	Log    Log
	JWT    JWT
	DB     DB
	Redis  Redis  `mapstructure:"redis"`
	Auth   Auth   `mapstructure:"auth"`
	Mail   Mail   `mapstructure:"mail"`
	Avatar Avatar `mapstructure:"avatar"`
}

func Load(path string) *Config {
	v := viper.New()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("read config: %v", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		log.Fatalf("unmarshal config: %v", err)
	}
	return &c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("auth.default_role", "user")
	v.SetDefault("auth.admin_role", "admin")
	v.SetDefault("auth.register_enabled", true)
	v.SetDefault("auth.require_verification", true)
	v.SetDefault("auth.password_pattern", `^\S{8,64}$`)
	v.SetDefault("auth.password_message", "Password must be 8 to 64 characters with no spaces")
	v.SetDefault("auth.token_ttl_hours", 24)
	v.SetDefault("avatar.host", "www.gravatar.com")
}
