package core

import (
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env                       string
		Build                     string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		SecretKey                 string
		FrontendBaseURL           string
		PasswordResetTimeoutDelta time.Duration
		RollbarToken              string
		SendgridApiKey            string
		CORSOrigins               []string

		defaultFromEmail string

		Server    ServerConfig
		Database  DatabaseConfig
		Redis     RedisConfig
		FileStore FileStoreConfig
		Jobs      JobsConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTAudience               string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		JWTRefreshMaxAge          time.Duration
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite only
	}

	RedisConfig struct {
		Address  string
		Username string
		Password string
		DB       int
	}

	FileStoreConfig struct {
		BaseURL      string
		ServiceToken string
		Timeout      time.Duration
		MaxRetries   uint
		MaxFileSize  int64
		AllowedTypes []string
	}

	JobsConfig struct {
		Enabled               bool
		PopupExpirySpec       string
		RegistrationCloseSpec string
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	if addr, err := mail.ParseAddress(c.defaultFromEmail); err == nil {
		return *addr
	}
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Academia")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("defaultFromEmail", "Academia <noreply@localhost>")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("corsOrigins", []string{"http://localhost:8080"})

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtAudience", "Academia")
	v.SetDefault("server.jwtExpirationDelta", 15*time.Minute)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshMaxAge", 30*24*time.Hour)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "academia")
	v.SetDefault("database.user", "academia")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", "academia.db")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("fileStore.baseURL", "http://localhost:8090/api/v1")
	v.SetDefault("fileStore.serviceToken", "")
	v.SetDefault("fileStore.timeout", 30*time.Second)
	v.SetDefault("fileStore.maxRetries", uint(3))
	v.SetDefault("fileStore.maxFileSize", int64(20<<20))
	v.SetDefault("fileStore.allowedTypes", []string{
		"image/png", "image/jpeg", "image/gif", "application/pdf", "text/plain",
		"application/zip", "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	})

	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.popupExpirySpec", "@every 5m")
	v.SetDefault("jobs.registrationCloseSpec", "@hourly")
}

// NewConfig loads the configuration of the current environment.
// ENV selects the environment: DEV (local; default), TEST, QA, PROD.
// Values are read from `<ENV>_<KEY>` environment variables, optionally loaded from config/.env.<env>.
func NewConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	testMode := env == "TEST"
	if testMode {
		v.Set("debug", true)
		v.Set("jobs.enabled", false)
		v.Set("server.disableReqLogs", true)
	}

	// load .env if it exists (ignore if it does not)
	confDir := os.Getenv("CONFIG_DIR")
	if confDir == "" {
		confDir = "config"
	}
	dotEnvPath := filepath.Join(confDir, ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  testMode,
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimSuffix(v.GetString("frontendBaseURL"), "/"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		RollbarToken:              v.GetString("rollbarToken"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
		CORSOrigins:               v.GetStringSlice("corsOrigins"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTAudience:               v.GetString("server.jwtAudience"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			JWTRefreshMaxAge:          v.GetDuration("server.jwtRefreshMaxAge"),
			DisableReqLogs:            v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Path:          v.GetString("database.path"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Username: v.GetString("redis.username"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		FileStore: FileStoreConfig{
			BaseURL:      strings.TrimSuffix(v.GetString("fileStore.baseURL"), "/"),
			ServiceToken: v.GetString("fileStore.serviceToken"),
			Timeout:      v.GetDuration("fileStore.timeout"),
			MaxRetries:   v.GetUint("fileStore.maxRetries"),
			MaxFileSize:  v.GetInt64("fileStore.maxFileSize"),
			AllowedTypes: v.GetStringSlice("fileStore.allowedTypes"),
		},
		Jobs: JobsConfig{
			Enabled:               v.GetBool("jobs.enabled"),
			PopupExpirySpec:       v.GetString("jobs.popupExpirySpec"),
			RegistrationCloseSpec: v.GetString("jobs.registrationCloseSpec"),
		},
	}
	return conf, nil
}

// NewTestConfig returns a Config suitable for tests; no environment lookup is done.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	return &Config{
		Env:                       "TEST",
		Build:                     "test",
		Debug:                     true,
		TestMode:                  true,
		AppName:                   v.GetString("appName"),
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:8080",
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		defaultFromEmail:          "noreply@localhost",
		Server: ServerConfig{
			Host:                      "localhost",
			JWTAudience:               "Academia",
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			JWTRefreshMaxAge:          24 * time.Hour,
			ShutdownTimeout:           time.Second,
			DisableReqLogs:            true,
		},
		Database: DatabaseConfig{Engine: "sqlite"},
		FileStore: FileStoreConfig{
			BaseURL:      "http://filestore.test",
			Timeout:      time.Second,
			MaxRetries:   1,
			MaxFileSize:  1 << 20,
			AllowedTypes: v.GetStringSlice("fileStore.allowedTypes"),
		},
	}
}
