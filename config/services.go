package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorker runs the PDF generation worker.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeOutbox runs the outbox email processor.
	ServiceModeOutbox ServiceMode = "outbox"
	// ServiceModeCleanup runs the expired file cleanup loop.
	ServiceModeCleanup ServiceMode = "cleanup"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeWorker,
		ServiceModeOutbox,
		ServiceModeCleanup,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorker, ServiceModeOutbox, ServiceModeCleanup:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: worker, outbox, cleanup)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains PDF worker service configuration.
type WorkerConfig struct {
	// Concurrency is the number of jobs rendered in parallel.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// RenderTimeout bounds a single HTML to PDF conversion.
	RenderTimeout time.Duration `env:"WORKER_RENDER_TIMEOUT" envDefault:"2m"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.RenderTimeout < 5*time.Second {
		w.RenderTimeout = 5 * time.Second
	}
}

// OutboxConfig contains outbox processor service configuration.
type OutboxConfig struct {
	// Interval is the delay between outbox passes.
	Interval time.Duration `env:"OUTBOX_INTERVAL" envDefault:"30s"`

	// BatchSize is the maximum number of due messages fetched per pass.
	BatchSize int `env:"OUTBOX_BATCH_SIZE" envDefault:"10"`

	// MaxRetryAttempts is the number of delivery attempts before a message
	// is marked permanently failed.
	MaxRetryAttempts int `env:"OUTBOX_MAX_RETRY_ATTEMPTS" envDefault:"3"`

	// BaseRetryDelay is the delay before the first retry.
	BaseRetryDelay time.Duration `env:"OUTBOX_BASE_RETRY_DELAY" envDefault:"1m"`

	// BackoffMultiplier scales the retry delay per failed attempt.
	BackoffMultiplier float64 `env:"OUTBOX_BACKOFF_MULTIPLIER" envDefault:"5"`

	// LeaseTTL is the Redis pass lease duration when the lease is enabled.
	LeaseTTL time.Duration `env:"OUTBOX_LEASE_TTL" envDefault:"25s"`
}

// Sanitize applies guardrails to outbox configuration values.
func (o *OutboxConfig) Sanitize() {
	if o.Interval < 1*time.Second {
		o.Interval = 1 * time.Second
	}
	if o.BatchSize < 1 {
		o.BatchSize = 1
	}
	if o.BatchSize > 1000 {
		o.BatchSize = 1000
	}
	if o.MaxRetryAttempts < 1 {
		o.MaxRetryAttempts = 1
	}
	if o.BaseRetryDelay < 1*time.Second {
		o.BaseRetryDelay = 1 * time.Second
	}
	if o.BackoffMultiplier < 1 {
		o.BackoffMultiplier = 1
	}
	if o.LeaseTTL < 1*time.Second {
		o.LeaseTTL = 1 * time.Second
	}
}

// CleanupConfig contains expired file cleanup service configuration.
type CleanupConfig struct {
	// Interval is the delay between cleanup sweeps.
	Interval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"6h"`

	// BatchSize is the maximum number of expired jobs processed per sweep.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"CLEANUP_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to cleanup configuration values.
func (c *CleanupConfig) Sanitize() {
	// Enforce a minimum interval to prevent excessive database load
	if c.Interval < 1*time.Minute {
		c.Interval = 1 * time.Minute
	}
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	if c.BatchSize > 10000 {
		c.BatchSize = 10000
	}
}

// StorageConfig contains PDF file storage configuration.
type StorageConfig struct {
	// Path is the directory where generated PDFs are written.
	Path string `env:"STORAGE_PATH" envDefault:"./generated-pdfs"`

	// RetentionDays is how long a generated file is kept before expiry.
	RetentionDays int `env:"STORAGE_RETENTION_DAYS" envDefault:"7"`

	// MaxFileSizeBytes rejects generated PDFs larger than this. 50 MiB default.
	MaxFileSizeBytes int64 `env:"STORAGE_MAX_FILE_SIZE_BYTES" envDefault:"52428800"`
}

// Sanitize applies guardrails to storage configuration values.
func (s *StorageConfig) Sanitize() {
	if s.Path == "" {
		s.Path = "./generated-pdfs"
	}
	if s.RetentionDays < 1 {
		s.RetentionDays = 1
	}
	if s.MaxFileSizeBytes < 1 {
		s.MaxFileSizeBytes = 52428800
	}
}

// Retention returns the file retention period as a duration.
func (s *StorageConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

// EmailConfig contains outbound SMTP configuration.
type EmailConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"587"`
	User     string `env:"USER"     envDefault:""`
	Password string `env:"PASSWORD" envDefault:""`
	From     string `env:"FROM"     envDefault:"noreply@htpdf.local"`
	// UseTLS enables STARTTLS on the SMTP connection.
	UseTLS bool `env:"USE_TLS" envDefault:"true"`
}

// Sanitize applies guardrails to email configuration values.
func (e *EmailConfig) Sanitize() {
	if e.Port < 1 || e.Port > 65535 {
		e.Port = 587
	}
	if e.From == "" {
		e.From = "noreply@htpdf.local"
	}
}

// LimitsConfig contains request limit configuration.
type LimitsConfig struct {
	// MaxHTMLSizeBytes rejects submissions whose HTML exceeds this. 2 MiB default.
	MaxHTMLSizeBytes int `env:"LIMITS_MAX_HTML_SIZE_BYTES" envDefault:"2097152"`

	// MaxConcurrentJobsPerOwner caps the pending plus processing jobs one
	// owner may hold at a time.
	MaxConcurrentJobsPerOwner int `env:"LIMITS_MAX_CONCURRENT_JOBS_PER_OWNER" envDefault:"5"`
}

// Sanitize applies guardrails to limits configuration values.
func (l *LimitsConfig) Sanitize() {
	if l.MaxHTMLSizeBytes < 1 {
		l.MaxHTMLSizeBytes = 2097152
	}
	if l.MaxConcurrentJobsPerOwner < 1 {
		l.MaxConcurrentJobsPerOwner = 1
	}
}

// RendererConfig contains wkhtmltopdf renderer configuration.
type RendererConfig struct {
	// BinaryPath overrides the wkhtmltopdf binary location. Empty means
	// the binary is resolved from PATH.
	BinaryPath string `env:"RENDERER_BINARY_PATH" envDefault:""`

	// DPI is the rendering resolution.
	DPI uint `env:"RENDERER_DPI" envDefault:"96"`
}

// Sanitize applies guardrails to renderer configuration values.
func (r *RendererConfig) Sanitize() {
	if r.DPI < 72 {
		r.DPI = 72
	}
}
