// Package config loads the LDAP authentication settings for the command line tool.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"github.com/isometry/ldap-auth-check/internal/ldap"
)

// EnvPrefix is the prefix of the environment variables read by Load.
const EnvPrefix = "LDAP"

// environment holds the settings that may be overridden from the environment.
// Nil fields were not set and leave the loaded value untouched.
type environment struct {
	Host                   *string        `envconfig:"HOST"`
	Port                   *int           `envconfig:"PORT"`
	BaseDN                 *string        `envconfig:"BASE_DN"`
	TLSMode                *string        `envconfig:"TLS_MODE"`
	Timeout                *time.Duration `envconfig:"TIMEOUT"`
	TLSCACertFile          *string        `envconfig:"TLS_CA_CERT_FILE"`
	DNPrefix               *string        `envconfig:"DN_PREFIX"`
	UseSearchAndBind       *bool          `envconfig:"USE_SEARCH_AND_BIND"`
	ServiceAccountUsername *string        `envconfig:"SERVICE_ACCOUNT_USERNAME"`
	ServiceAccountPassword *string        `envconfig:"SERVICE_ACCOUNT_PASSWORD"`
	SearchAttribute        *string        `envconfig:"SEARCH_ATTRIBUTE"`
	RoleAttribute          *string        `envconfig:"ROLE_ATTRIBUTE"`
	Verbose                *bool          `envconfig:"VERBOSE"`
}

// Load builds the configuration from defaults, then the TOML file at path (if
// path is not empty), then LDAP_* environment variables.
func Load(path string) (ldap.Config, error) {
	cfg := ldap.DefaultConfig()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return ldap.Config{}, err
		}
	}

	if err := loadEnv(&cfg); err != nil {
		return ldap.Config{}, err
	}

	return cfg, nil
}

func loadFile(path string, cfg *ldap.Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
	}

	return nil
}

func loadEnv(cfg *ldap.Config) error {
	var env environment
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to process LDAP configuration: %w", err)
	}

	return env.apply(cfg)
}

func (e *environment) apply(cfg *ldap.Config) error {
	setString(&cfg.Host, e.Host)
	setString(&cfg.BaseDN, e.BaseDN)
	setString(&cfg.TLSCACertFile, e.TLSCACertFile)
	setString(&cfg.DNPrefix, e.DNPrefix)
	setString(&cfg.ServiceAccountUsername, e.ServiceAccountUsername)
	setString(&cfg.ServiceAccountPassword, e.ServiceAccountPassword)
	setString(&cfg.SearchAttribute, e.SearchAttribute)
	setString(&cfg.RoleAttribute, e.RoleAttribute)

	if e.Port != nil {
		cfg.Port = *e.Port
	}
	if e.Timeout != nil {
		cfg.Timeout = *e.Timeout
	}
	if e.UseSearchAndBind != nil {
		cfg.UseSearchAndBind = *e.UseSearchAndBind
	}
	if e.Verbose != nil {
		cfg.Verbose = *e.Verbose
	}

	if e.TLSMode != nil {
		mode, err := ldap.ParseTLSMode(*e.TLSMode)
		if err != nil {
			return fmt.Errorf("invalid %s_TLS_MODE: %w", EnvPrefix, err)
		}
		cfg.TLSMode = mode
	}

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

