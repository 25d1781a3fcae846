package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shyim/vitals-dashboard/internal/credential"
	"github.com/shyim/vitals-dashboard/internal/pagespeed"
)

type Config struct {
	Port      string `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
	LogLevel  string `yaml:"log_level"`
	// LogFormat is json or console.
	LogFormat  string           `yaml:"log_format"`
	PageSpeed  PageSpeedConfig  `yaml:"pagespeed"`
	Cache      CacheConfig      `yaml:"cache"`
	Credential CredentialConfig `yaml:"credential"`
	S3         S3Config         `yaml:"s3"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

type PageSpeedConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Retries           int           `yaml:"retries"`
}

type CacheConfig struct {
	StaleTime       time.Duration `yaml:"stale_time"`
	GCTime          time.Duration `yaml:"gc_time"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

const (
	BackendFile       = credential.KindFile
	BackendKubernetes = credential.KindKubernetes
	BackendMemory     = credential.KindMemory
)

type CredentialConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	Namespace  string `yaml:"namespace"`
	SecretName string `yaml:"secret_name"`
	// APIKey is used in memory when the backend holds nothing.
	APIKey string `yaml:"api_key"`
}

// S3Config enables the report archive when Bucket is set.
type S3Config struct {
	ServiceURL string `yaml:"service_url"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	Region     string `yaml:"region"`

	// DisablePayloadSigning is on unless S3_DISABLE_PAYLOAD_SIGNING=false.
	DisablePayloadSigning bool `yaml:"disable_payload_signing"`
}

type TelemetryConfig struct {
	SentryDSN    string `yaml:"sentry_dsn"`
	Environment  string `yaml:"environment"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

func Default() Config {
	return Config{
		Port:      "8080",
		LogLevel:  "info",
		LogFormat: "json",
		PageSpeed: PageSpeedConfig{
			Endpoint:          pagespeed.DefaultEndpoint,
			Timeout:           30 * time.Second,
			RequestsPerSecond: 1,
			Burst:             5,
			Retries:           2,
		},
		Cache: CacheConfig{
			StaleTime:       15 * time.Minute,
			GCTime:          time.Hour,
			CleanupInterval: 5 * time.Minute,
		},
		S3: S3Config{
			DisablePayloadSigning: true,
		},
		Credential: CredentialConfig{
			Backend:    BackendFile,
			Path:       credential.DefaultPath(),
			SecretName: "vitals-dashboard",
		},
		Telemetry: TelemetryConfig{
			Environment: "production",
			ServiceName: "vitals-dashboard",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if any)
// and then with environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"PORT":                        &cfg.Port,
		"AUTH_TOKEN":                  &cfg.AuthToken,
		"LOG_LEVEL":                   &cfg.LogLevel,
		"LOG_FORMAT":                  &cfg.LogFormat,
		"PAGESPEED_ENDPOINT":          &cfg.PageSpeed.Endpoint,
		"PAGESPEED_API_KEY":           &cfg.Credential.APIKey,
		"CREDENTIAL_BACKEND":          &cfg.Credential.Backend,
		"CREDENTIAL_PATH":             &cfg.Credential.Path,
		"CREDENTIAL_NAMESPACE":        &cfg.Credential.Namespace,
		"CREDENTIAL_SECRET":           &cfg.Credential.SecretName,
		"S3_SERVICE_URL":              &cfg.S3.ServiceURL,
		"S3_ACCESS_KEY":               &cfg.S3.AccessKey,
		"S3_SECRET_KEY":               &cfg.S3.SecretKey,
		"S3_BUCKET_NAME":              &cfg.S3.Bucket,
		"S3_REGION":                   &cfg.S3.Region,
		"SENTRY_DSN":                  &cfg.Telemetry.SentryDSN,
		"SENTRY_ENVIRONMENT":          &cfg.Telemetry.Environment,
		"OTEL_EXPORTER_OTLP_ENDPOINT": &cfg.Telemetry.OTLPEndpoint,
		"SERVICE_NAME":                &cfg.Telemetry.ServiceName,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"PAGESPEED_TIMEOUT": &cfg.PageSpeed.Timeout,
		"CACHE_STALE_TIME":  &cfg.Cache.StaleTime,
		"CACHE_GC_TIME":     &cfg.Cache.GCTime,
	}
	for name, dst := range durations {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
	}

	if v := os.Getenv("S3_DISABLE_PAYLOAD_SIGNING"); v != "" {
		cfg.S3.DisablePayloadSigning = v != "false"
	}

	if v := os.Getenv("PAGESPEED_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PAGESPEED_RETRIES: %w", err)
		}
		cfg.PageSpeed.Retries = n
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Credential.Backend {
	case BackendFile:
		if c.Credential.Path == "" {
			errs = append(errs, errors.New("credential.path is required for the file backend"))
		}
	case BackendKubernetes:
		if c.Credential.Namespace == "" || c.Credential.SecretName == "" {
			errs = append(errs, errors.New("credential.namespace and credential.secret_name are required for the kubernetes backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown credential backend %q", c.Credential.Backend))
	}
	if c.PageSpeed.Timeout <= 0 {
		errs = append(errs, errors.New("pagespeed.timeout must be positive"))
	}
	if c.PageSpeed.Retries < 0 {
		errs = append(errs, errors.New("pagespeed.retries must not be negative"))
	}
	if c.Cache.StaleTime <= 0 {
		errs = append(errs, errors.New("cache.stale_time must be positive"))
	}
	if c.Cache.GCTime < c.Cache.StaleTime {
		errs = append(errs, errors.New("cache.gc_time must not be shorter than cache.stale_time"))
	}
	if c.Cache.CleanupInterval <= 0 {
		errs = append(errs, errors.New("cache.cleanup_interval must be positive"))
	}
	return errors.Join(errs...)
}
