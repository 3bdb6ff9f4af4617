// Package config provides functionality for managing configuration options
// for the application using command-line flags, an optional JSON file and
// environment variables.
//
// Precedence, lowest to highest: flag defaults, the JSON file, explicitly
// set flags, environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"server_address"`

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string `json:"database_dsn"`

	// JWTSecret signs session tokens.
	JWTSecret string `json:"jwt_secret"`

	// TokenTTL is the lifetime of a session.
	TokenTTL time.Duration `json:"-"`

	// LogLevel is a zap level name.
	LogLevel string `json:"log_level"`

	// RedisAddr enables cross-instance change fan-out when set.
	RedisAddr    string `json:"redis_addr"`
	RedisChannel string `json:"redis_channel"`

	// MinIO snapshot storage; disabled when MinioEndpoint is empty.
	MinioEndpoint string `json:"minio_endpoint"`
	MinioUser     string `json:"minio_user"`
	MinioPassword string `json:"minio_password"`
	MinioBucket   string `json:"minio_bucket"`
	MinioSSL      bool   `json:"minio_ssl"`

	// TLSCertFile and TLSKeyFile switch the server to HTTPS.
	TLSCertFile string `json:"tls_cert_file"`
	TLSKeyFile  string `json:"tls_key_file"`

	// CleanupInterval is how often expired sessions and codes are purged.
	CleanupInterval time.Duration `json:"-"`

	// Config is the path to the Config file.
	Config string `json:"-"`
}

// fileOptions mirrors the duration fields as strings so the JSON file can
// say "24h" instead of nanoseconds.
type fileOptions struct {
	*Options
	TokenTTL        string `json:"token_ttl"`
	CleanupInterval string `json:"cleanup_interval"`
}

// Parse reads configuration from os.Args and the process environment.
func Parse() (*Options, error) {
	return ParseArgs(os.Args[1:], os.LookupEnv)
}

// ParseArgs reads configuration from args and lookupEnv. It returns an error
// when a flag, the config file or an environment value is malformed, or when
// a required option is missing.
func ParseArgs(args []string, lookupEnv func(string) (string, bool)) (*Options, error) {
	options := &Options{}
	fs := flag.NewFlagSet("vault", flag.ContinueOnError)
	fs.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.JWTSecret, "s", "", "session signing secret")
	fs.DurationVar(&options.TokenTTL, "ttl", 24*time.Hour, "session lifetime")
	fs.StringVar(&options.LogLevel, "l", "info", "log level")
	fs.StringVar(&options.RedisAddr, "redis", "", "redis address for change fan-out")
	fs.StringVar(&options.RedisChannel, "redis-channel", "vault-changes", "redis pub/sub channel")
	fs.StringVar(&options.MinioEndpoint, "minio", "", "minio endpoint for snapshots")
	fs.StringVar(&options.MinioUser, "minio-user", "", "minio access key")
	fs.StringVar(&options.MinioPassword, "minio-password", "", "minio secret key")
	fs.StringVar(&options.MinioBucket, "minio-bucket", "vault-snapshots", "minio bucket")
	fs.BoolVar(&options.MinioSSL, "minio-ssl", false, "use TLS for minio")
	fs.StringVar(&options.TLSCertFile, "tls-cert", "", "TLS certificate file")
	fs.StringVar(&options.TLSKeyFile, "tls-key", "", "TLS key file")
	fs.DurationVar(&options.CleanupInterval, "cleanup", time.Hour, "expired session cleanup interval")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override flags with environment variables if set
	if configPath, ok := lookupEnv("CONFIG"); ok && configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		// flags given on the command line win over the file
		explicit := map[string]string{}
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })
		if err := loadFile(options, options.Config); err != nil {
			return nil, err
		}
		for name, value := range explicit {
			if err := fs.Set(name, value); err != nil {
				return nil, err
			}
		}
	}

	if err := applyEnv(options, lookupEnv); err != nil {
		return nil, err
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

func loadFile(options *Options, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error while reading config file: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	fo := fileOptions{Options: options}
	if err := json.Unmarshal(data, &fo); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	if fo.TokenTTL != "" {
		if options.TokenTTL, err = time.ParseDuration(fo.TokenTTL); err != nil {
			return fmt.Errorf("config file token_ttl: %w", err)
		}
	}
	if fo.CleanupInterval != "" {
		if options.CleanupInterval, err = time.ParseDuration(fo.CleanupInterval); err != nil {
			return fmt.Errorf("config file cleanup_interval: %w", err)
		}
	}
	return nil
}

func applyEnv(options *Options, lookupEnv func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"SERVER_ADDRESS", &options.Port},
		{"DATABASE_DSN", &options.DatabaseDSN},
		{"JWT_SECRET", &options.JWTSecret},
		{"LOG_LEVEL", &options.LogLevel},
		{"REDIS_ADDR", &options.RedisAddr},
		{"REDIS_CHANNEL", &options.RedisChannel},
		{"MINIO_ENDPOINT", &options.MinioEndpoint},
		{"MINIO_USER", &options.MinioUser},
		{"MINIO_PASSWORD", &options.MinioPassword},
		{"MINIO_BUCKET", &options.MinioBucket},
		{"TLS_CERT_FILE", &options.TLSCertFile},
		{"TLS_KEY_FILE", &options.TLSKeyFile},
	}
	for _, s := range strs {
		if v, ok := lookupEnv(s.key); ok && v != "" {
			*s.dst = v
		}
	}

	if v, ok := lookupEnv("MINIO_SSL"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MINIO_SSL: %w", err)
		}
		options.MinioSSL = b
	}

	durs := []struct {
		key string
		dst *time.Duration
	}{
		{"TOKEN_TTL", &options.TokenTTL},
		{"CLEANUP_INTERVAL", &options.CleanupInterval},
	}
	for _, d := range durs {
		if v, ok := lookupEnv(d.key); ok && v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}
	return nil
}

// Validate reports missing or inconsistent options.
func (o *Options) Validate() error {
	if o.DatabaseDSN == "" {
		return errors.New("database DSN is required (-d or DATABASE_DSN)")
	}
	if o.JWTSecret == "" {
		return errors.New("jwt secret is required (-s or JWT_SECRET)")
	}
	if o.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", o.TokenTTL)
	}
	if o.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", o.CleanupInterval)
	}
	if (o.TLSCertFile == "") != (o.TLSKeyFile == "") {
		return errors.New("tls cert and key must be set together")
	}
	return nil
}

// TLSEnabled reports whether the server should listen with HTTPS.
func (o *Options) TLSEnabled() bool {
	return o.TLSCertFile != "" && o.TLSKeyFile != ""
}
