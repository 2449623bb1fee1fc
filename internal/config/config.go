package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig describes one PBS coordinator endpoint the client can
// drive a ConsumeBudgetCommand phase against.
type EndpointConfig struct {
	URL          string `json:"url"`
	AuthEndpoint string `json:"auth_endpoint"` // Token-exchange endpoint, empty if unused
}

// HTTPConfig holds HTTP/2 connection substrate settings.
type HTTPConfig struct {
	MaxConnectionsPerHost int           `json:"max_connections_per_host"` // Default: 2
	ReadIdleTimeout       time.Duration `json:"read_idle_timeout"`        // Default: 60s
	DialTimeout           time.Duration `json:"dial_timeout"`             // Default: 5s
}

// RetryConfig holds the exponential-backoff retry strategy settings used
// by SyncClient.
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries"`     // Default: 5
	InitialDelay  time.Duration `json:"initial_delay"`   // Default: 100ms
	MaxDelay      time.Duration `json:"max_delay"`       // Default: 5s
	JitterPercent float64       `json:"jitter_percent"`  // Default: 0.2 (±20%)
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`      // Default: false
	Exporter    string  `json:"exporter"`     // otlp-http, stdout
	Endpoint    string  `json:"endpoint"`     // localhost:4318
	ServiceName string  `json:"service_name"` // pbs-client
	SampleRate  float64 `json:"sample_rate"`  // 1.0
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled          bool      `json:"enabled"`           // Default: true
	Namespace        string    `json:"namespace"`         // pbs_client
	HistogramBuckets []float64 `json:"histogram_buckets"` // Latency buckets in seconds
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level          string `json:"level"`            // debug, info, warn, error
	Format         string `json:"format"`           // text, json
	IncludeTraceID bool   `json:"include_trace_id"` // Correlate with traces
}

// ObservabilityConfig holds all observability-related settings.
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing"`
	Metrics MetricsConfig `json:"metrics"`
	Logging LoggingConfig `json:"logging"`
}

// TransactionConfig holds ConsumeBudgetCommand / PBSClient timing settings.
type TransactionConfig struct {
	DefaultExpiration time.Duration `json:"default_expiration"` // Default: 10s, AsyncContext.ExpirationTime when unset
	ReconciliationCap int           `json:"reconciliation_cap"` // Default: 1; not read: transaction.Command reconciles a 412 at most once
}

// AuthConfig selects which external credential/token collaborator the
// client attaches to outbound requests (see internal/authprovider).
// No concrete RoleCredentialsProvider/AuthTokenProviderCache ships
// with this client; selecting a provider with no collaborator wired
// in by the embedding caller surfaces authprovider.ErrNoCredentialSource.
type AuthConfig struct {
	Provider string `json:"provider"` // "aws-sigv4", "gcp-bearer", "none"
	RoleArn  string `json:"role_arn"` // AWS role to assume when Provider is "aws-sigv4"
	Audience string `json:"audience"` // GCP token audience when Provider is "gcp-bearer"
}

// Config is the central configuration struct embedding all component configs.
type Config struct {
	Endpoints     []EndpointConfig    `json:"endpoints"`
	HTTP          HTTPConfig          `json:"http"`
	Retry         RetryConfig         `json:"retry"`
	Transaction   TransactionConfig   `json:"transaction"`
	Auth          AuthConfig          `json:"auth"`
	Observability ObservabilityConfig `json:"observability"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Endpoints: nil,
		HTTP: HTTPConfig{
			MaxConnectionsPerHost: 2,
			ReadIdleTimeout:       60 * time.Second,
			DialTimeout:           5 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:    5,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			JitterPercent: 0.2,
		},
		Transaction: TransactionConfig{
			DefaultExpiration: 10 * time.Second,
			ReconciliationCap: 1,
		},
		Auth: AuthConfig{
			Provider: "none",
			RoleArn:  "",
			Audience: "",
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "pbs-client",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:          true,
				Namespace:        "pbs_client",
				HistogramBuckets: []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10},
			},
			Logging: LoggingConfig{
				Level:          "info",
				Format:         "text",
				IncludeTraceID: true,
			},
		},
	}
}

// LoadFromFile loads configuration from a JSON file, overlaying it onto
// DefaultConfig.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv applies PBSCLIENT_* environment variable overrides to the config.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PBSCLIENT_LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("PBSCLIENT_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("PBSCLIENT_LOG_INCLUDE_TRACE_ID"); v != "" {
		cfg.Observability.Logging.IncludeTraceID = parseBool(v)
	}

	if v := os.Getenv("PBSCLIENT_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("PBSCLIENT_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("PBSCLIENT_TRACING_EXPORTER"); v != "" {
		cfg.Observability.Tracing.Exporter = v
	}
	if v := os.Getenv("PBSCLIENT_TRACING_SERVICE_NAME"); v != "" {
		cfg.Observability.Tracing.ServiceName = v
	}
	if v := os.Getenv("PBSCLIENT_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = f
		}
	}

	if v := os.Getenv("PBSCLIENT_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("PBSCLIENT_METRICS_NAMESPACE"); v != "" {
		cfg.Observability.Metrics.Namespace = v
	}

	if v := os.Getenv("PBSCLIENT_HTTP_MAX_CONNECTIONS_PER_HOST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.MaxConnectionsPerHost = n
		}
	}
	if v := os.Getenv("PBSCLIENT_HTTP_READ_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.ReadIdleTimeout = d
		}
	}
	if v := os.Getenv("PBSCLIENT_HTTP_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.DialTimeout = d
		}
	}

	if v := os.Getenv("PBSCLIENT_RETRY_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxRetries = n
		}
	}
	if v := os.Getenv("PBSCLIENT_RETRY_INITIAL_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.InitialDelay = d
		}
	}
	if v := os.Getenv("PBSCLIENT_RETRY_MAX_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.MaxDelay = d
		}
	}

	if v := os.Getenv("PBSCLIENT_TRANSACTION_DEFAULT_EXPIRATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Transaction.DefaultExpiration = d
		}
	}

	if v := os.Getenv("PBSCLIENT_AUTH_PROVIDER"); v != "" {
		cfg.Auth.Provider = v
	}
	if v := os.Getenv("PBSCLIENT_AUTH_ROLE_ARN"); v != "" {
		cfg.Auth.RoleArn = v
	}
	if v := os.Getenv("PBSCLIENT_AUTH_AUDIENCE"); v != "" {
		cfg.Auth.Audience = v
	}

	if v := os.Getenv("PBSCLIENT_ENDPOINTS"); v != "" {
		var endpoints []EndpointConfig
		for _, u := range strings.Split(v, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				endpoints = append(endpoints, EndpointConfig{URL: u})
			}
		}
		if len(endpoints) > 0 {
			cfg.Endpoints = endpoints
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
