package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

type Config struct {
	AppURL                 string `validate:"required,hostname_port"`
	ShutdownTimeoutSeconds int    `validate:"gt=0"`
	SeedOnStartup          bool
	Database               DatabaseConfig
	Auth                   AuthConfig
	Redis                  RedisConfig
	Log                    LogConfig
	RateLimit              int `validate:"gte=0"`
	// TrustedProxies lists the proxy ranges whose X-Forwarded-For is
	// believed. Empty means the client IP is the socket peer.
	TrustedProxies         []*net.IPNet
	OpenAPIEnabled         bool
}

type DatabaseConfig struct {
	Driver       string `validate:"required,oneof=sqlite postgres"`
	DSN          string `validate:"required"`
	MaxOpenConns int    `validate:"gte=0"`
}

type AuthConfig struct {
	Issuer           string `validate:"required"`
	Audience         string `validate:"required"`
	SigningKey       string `validate:"required,min=32"`
	LeewaySeconds    int    `validate:"gte=0"`
	ProtectAllWrites bool
}

func (a AuthConfig) Leeway() time.Duration {
	return time.Duration(a.LeewaySeconds) * time.Second
}

type RedisConfig struct {
	Addr      string
	KeyPrefix string `validate:"required"`
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json text"`
}

var defaults = map[string]any{
	"APP_HOST":                 "127.0.0.1",
	"APP_PORT":                 "8080",
	"SHUTDOWN_TIMEOUT_SECONDS": 20,
	"SEED_ON_STARTUP":          true,
	"DATABASE_DRIVER":          "sqlite",
	"DATABASE_DSN":             "tasks.db",
	"DATABASE_MAX_OPEN_CONNS":  10,
	"JWT_ISSUER":               "task-api",
	"JWT_AUDIENCE":             "task-api-users",
	"JWT_SIGNING_KEY":          "",
	"JWT_LEEWAY_SECONDS":       30,
	"AUTH_PROTECT_ALL_WRITES":  false,
	"RATE_LIMIT_PER_MINUTE":    120,
	"TRUSTED_PROXIES":          "",
	"OPENAPI_ENABLED":          false,
	"REDIS_ADDR":               "",
	"REDIS_KEY_PREFIX":         "task-api",
	"LOG_LEVEL":                "info",
	"LOG_FORMAT":               "json",
}

// Load reads the configuration from the environment. Call godotenv.Load
// first when a .env file should be honoured.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	env := &envReader{v: v}
	cfg := Config{
		AppURL:                 net.JoinHostPort(v.GetString("APP_HOST"), v.GetString("APP_PORT")),
		ShutdownTimeoutSeconds: env.int("SHUTDOWN_TIMEOUT_SECONDS"),
		SeedOnStartup:          env.bool("SEED_ON_STARTUP"),
		Database: DatabaseConfig{
			Driver:       strings.ToLower(v.GetString("DATABASE_DRIVER")),
			DSN:          v.GetString("DATABASE_DSN"),
			MaxOpenConns: env.int("DATABASE_MAX_OPEN_CONNS"),
		},
		Auth: AuthConfig{
			Issuer:           v.GetString("JWT_ISSUER"),
			Audience:         v.GetString("JWT_AUDIENCE"),
			SigningKey:       v.GetString("JWT_SIGNING_KEY"),
			LeewaySeconds:    env.int("JWT_LEEWAY_SECONDS"),
			ProtectAllWrites: env.bool("AUTH_PROTECT_ALL_WRITES"),
		},
		Redis: RedisConfig{
			Addr:      v.GetString("REDIS_ADDR"),
			KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		RateLimit:      env.int("RATE_LIMIT_PER_MINUTE"),
		TrustedProxies: env.cidrs("TRUSTED_PROXIES"),
		OpenAPIEnabled: env.bool("OPENAPI_ENABLED"),
	}

	if len(env.problems) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(env.problems, "; "))
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envReader converts raw values and collects every conversion failure so
// a typo is reported instead of becoming a zero value.
type envReader struct {
	v        *viper.Viper
	problems []string
}

func (r *envReader) int(key string) int {
	n, err := cast.ToIntE(r.v.Get(key))
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("invalid integer value for %s: %q", key, r.v.GetString(key)))
	}
	return n
}

func (r *envReader) bool(key string) bool {
	b, err := cast.ToBoolE(r.v.Get(key))
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("invalid boolean value for %s: %q", key, r.v.GetString(key)))
	}
	return b
}

func (r *envReader) cidrs(key string) []*net.IPNet {
	var nets []*net.IPNet
	for _, raw := range strings.Split(r.v.GetString(key), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		_, ipNet, err := net.ParseCIDR(raw)
		if err != nil {
			r.problems = append(r.problems, fmt.Sprintf("invalid CIDR in %s: %q", key, raw))
			continue
		}
		nets = append(nets, ipNet)
	}
	return nets
}

func validate(cfg Config) error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	problems := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		problems = append(problems, describe(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

var envNames = map[string]string{
	"Config.AppURL":                 "APP_HOST/APP_PORT",
	"Config.ShutdownTimeoutSeconds": "SHUTDOWN_TIMEOUT_SECONDS",
	"Config.RateLimit":              "RATE_LIMIT_PER_MINUTE",
	"Config.Database.Driver":        "DATABASE_DRIVER",
	"Config.Database.DSN":           "DATABASE_DSN",
	"Config.Database.MaxOpenConns":  "DATABASE_MAX_OPEN_CONNS",
	"Config.Auth.Issuer":            "JWT_ISSUER",
	"Config.Auth.Audience":          "JWT_AUDIENCE",
	"Config.Auth.SigningKey":        "JWT_SIGNING_KEY",
	"Config.Auth.LeewaySeconds":     "JWT_LEEWAY_SECONDS",
	"Config.Redis.KeyPrefix":        "REDIS_KEY_PREFIX",
	"Config.Log.Level":              "LOG_LEVEL",
	"Config.Log.Format":             "LOG_FORMAT",
}

func describe(fe validator.FieldError) string {
	name, ok := envNames[fe.Namespace()]
	if !ok {
		name = fe.Namespace()
	}

	switch fe.Tag() {
	case "required":
		return name + " must not be empty"
	case "min":
		return name + " must be at least " + fe.Param() + " characters"
	case "gt":
		return name + " must be greater than " + fe.Param()
	case "gte":
		return name + " must be " + fe.Param() + " or greater"
	case "oneof":
		return name + " must be one of: " + fe.Param()
	case "hostname_port":
		return name + " must form a valid host:port"
	default:
		return name + " failed " + fe.Tag() + " (value " + strconv.Quote(fmt.Sprint(fe.Value())) + ")"
	}
}
