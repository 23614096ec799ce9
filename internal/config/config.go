// Package config loads arcforge settings from arcforge.yaml and the
// environment.
//
// Environment variables override the file: ARCFORGE_<SECTION>_<KEY>, e.g.
// ARCFORGE_DATABASE_DRIVER or ARCFORGE_SERVER_PORT. The database section
// also honours the conventional DB_NAME, DB_USER, DB_PASSWORD, DB_HOST and
// DB_PORT variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/errs"
	"github.com/koustreak/arcforge/internal/filestore"
	"github.com/koustreak/arcforge/internal/logger"
)

// Config is the full arcforge configuration.
type Config struct {
	// Definitions is the YAML file declaring the entities.
	Definitions string           `mapstructure:"definitions"`
	Database    database.Config  `mapstructure:"database"`
	Log         logger.Config    `mapstructure:"log"`
	Server      ServerConfig     `mapstructure:"server"`
	Export      filestore.Config `mapstructure:"export"`
}

// ServerConfig configures the REST adapter.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// legacyEnv maps database keys to the plain variables older deployments set.
var legacyEnv = map[string]string{
	"database.name":     "DB_NAME",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("definitions", "entities.yaml")

	v.SetDefault("database.driver", string(database.DriverSQLite))
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "arcforge.db")
	v.SetDefault("database.sslmode", "")
	v.SetDefault("database.connect_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.time_format", "rfc3339")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)

	v.SetDefault("export.provider", string(filestore.ProviderMinIO))
	v.SetDefault("export.endpoint", "localhost:9000")
	v.SetDefault("export.access_key", "")
	v.SetDefault("export.secret_key", "")
	v.SetDefault("export.use_ssl", false)
	v.SetDefault("export.region", "")
	v.SetDefault("export.bucket", "arcforge-exports")
	v.SetDefault("export.prefix", "")
	v.SetDefault("export.presign_ttl", time.Duration(0))
}

// Load reads path, or arcforge.yaml in the working directory when path is
// empty; a missing default file is not an error. Environment variables are
// applied on top.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("arcforge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ARCFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := "ARCFORGE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.fillDriverDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fillDriverDefaults applies the driver's own defaults to settings left
// unset, so a bare "driver: postgres" reaches localhost:5432.
func (c *Config) fillDriverDefaults() {
	def := database.DefaultConfig(c.Database.Driver)
	if c.Database.Host == "" {
		c.Database.Host = def.Host
	}
	if c.Database.Port == 0 {
		c.Database.Port = def.Port
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = def.SSLMode
	}
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case database.DriverPostgres, database.DriverMySQL, database.DriverSQLite:
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "database.driver must be postgres, mysql or sqlite, got %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errs.Newf(errs.ErrKindInvalidInput, "server.port out of range: %d", c.Server.Port)
	}
	if c.Export.Prefix != "" && !strings.HasSuffix(c.Export.Prefix, "/") {
		return errs.Newf(errs.ErrKindInvalidInput, "export.prefix must end with '/', got %q", c.Export.Prefix)
	}
	return nil
}
