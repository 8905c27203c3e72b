package config

import (
	"fmt"
	"net/url"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks startup.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced in logs but does not block startup.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is the config key.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be returned directly.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// GoldStores lists the accepted values of gold_store.
var GoldStores = []string{"sqlite", "duckdb", "postgres"}

// Validate performs static checks over cfg. It does not mutate cfg.
func Validate(cfg Config) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(cfg.Rabbit.URL); err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") || u.Host == "" {
		add(SeverityError, "rabbitmq_url", "must be an amqp:// or amqps:// URL with a host, got %q", cfg.Rabbit.URL)
	}
	if strings.TrimSpace(cfg.Rabbit.TransformQueue) == "" {
		add(SeverityError, "transform_queue", "must not be empty")
	}
	if strings.TrimSpace(cfg.Rabbit.CleanQueue) == "" {
		add(SeverityError, "clean_queue", "must not be empty")
	}
	if cfg.Rabbit.TransformQueue != "" && cfg.Rabbit.TransformQueue == cfg.Rabbit.CleanQueue {
		add(SeverityError, "clean_queue", "must differ from transform_queue (%q)", cfg.Rabbit.TransformQueue)
	}

	if strings.TrimSpace(cfg.MinIO.Endpoint) == "" {
		add(SeverityError, "minio_endpoint", "must not be empty")
	} else if strings.Contains(cfg.MinIO.Endpoint, "://") {
		add(SeverityError, "minio_endpoint", "must be host:port without a scheme, got %q", cfg.MinIO.Endpoint)
	}
	if cfg.MinIO.AccessKey == "" || cfg.MinIO.SecretKey == "" {
		add(SeverityWarning, "minio_user", "empty credentials; requests will be anonymous")
	}

	if cfg.Buckets.Raw == "" {
		add(SeverityError, "raw_bucket", "must not be empty")
	}
	if cfg.Buckets.Xform == "" {
		add(SeverityError, "xform_bucket", "must not be empty")
	}
	if strings.Trim(cfg.Buckets.Prefix, "/") == "" {
		add(SeverityError, "prefix", "must not be empty")
	}

	if !contains(GoldStores, cfg.Gold.Store) {
		add(SeverityError, "gold_store", "unsupported %q (want one of %s)", cfg.Gold.Store, strings.Join(GoldStores, ", "))
	}
	if strings.TrimSpace(cfg.Gold.Path) == "" {
		add(SeverityError, "gold_db_path", "must not be empty")
	}
	if strings.TrimSpace(cfg.Gold.Table) == "" {
		add(SeverityError, "gold_table", "must not be empty")
	} else if cfg.Gold.Store == "sqlite" && strings.Contains(cfg.Gold.Table, ".") {
		add(SeverityWarning, "gold_table", "sqlite has no schemas; %q is stored as %q", cfg.Gold.Table, strings.ReplaceAll(cfg.Gold.Table, ".", "_"))
	}
	if cfg.Gold.BatchSize <= 0 {
		add(SeverityError, "gold_batch_size", "must be > 0")
	}

	switch cfg.Metrics.Backend {
	case "prometheus", "none", "":
	case "pushgateway":
		if cfg.Metrics.PushgatewayURL == "" {
			add(SeverityError, "pushgateway_url", "required when metrics_backend=pushgateway")
		}
	case "datadog":
		if cfg.Metrics.DogStatsDAddr == "" {
			add(SeverityError, "dogstatsd_addr", "required when metrics_backend=datadog")
		}
	default:
		add(SeverityError, "metrics_backend", "unsupported %q", cfg.Metrics.Backend)
	}
	checkPort := func(path string, p int) {
		if p < 0 || p > 65535 {
			add(SeverityError, path, "port %d out of range", p)
		}
	}
	checkPort("metrics_port", cfg.Metrics.Port)
	checkPort("health_port", cfg.HealthPort)
	if cfg.HealthPort != 0 && cfg.HealthPort == cfg.Metrics.Port {
		add(SeverityError, "health_port", "must differ from metrics_port")
	}

	if cfg.Startup.PortWaitTries <= 0 {
		add(SeverityError, "port_wait_tries", "must be > 0")
	}
	if cfg.Startup.ConnectTries <= 0 {
		add(SeverityError, "connect_tries", "must be > 0")
	}

	return issues
}

// Errors filters issues down to error severity.
func Errors(issues []Issue) []Issue {
	var out []Issue
	for _, i := range issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
