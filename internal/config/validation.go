package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields returns the paths of the invalid fields.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, err := range e {
		fields = append(fields, err.Field)
	}
	return fields
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateSpaceConfig(&cfg.Space)
	v.validateComputerConfig(&cfg.Computer)
	v.validateJobConfig(&cfg.Job)
	v.validateLoggingConfig(&cfg.Logging)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateSpaceConfig(cfg *SpaceConfig) {
	if cfg.Address == "" {
		v.addError("space.address", "address is required")
	} else if !isValidAddress(cfg.Address) {
		v.addError("space.address", "invalid address format, expected host:port or :port")
	}

	if cfg.DispatchConcurrency < 1 {
		v.addError("space.dispatch_concurrency", "dispatch concurrency must be at least 1")
	}

	// 0 disables health checks
	if cfg.HealthInterval < 0 {
		v.addError("space.health_interval", "health interval must be non-negative")
	}
	if cfg.HealthInterval > 0 && cfg.MaxFailures < 1 {
		v.addError("space.max_failures", "max failures must be at least 1 when health checks are enabled")
	}

	if cfg.RequestTimeout <= 0 {
		v.addError("space.request_timeout", "request timeout must be positive")
	}
	if cfg.ExecuteTimeout <= 0 {
		v.addError("space.execute_timeout", "execute timeout must be positive")
	}

	if cfg.TakeWait < time.Second {
		v.addError("space.take_wait", "take wait should be at least 1 second")
	}
}

func (v *Validator) validateComputerConfig(cfg *ComputerConfig) {
	if cfg.SpaceAddr == "" {
		v.addError("computer.space_addr", "space address is required")
	} else if !isValidAddress(cfg.SpaceAddr) {
		v.addError("computer.space_addr", "invalid space address format, expected host:port")
	}

	if cfg.Address == "" {
		v.addError("computer.address", "address is required")
	} else if !isValidAddress(cfg.Address) {
		v.addError("computer.address", "invalid address format, expected host:port or :port")
	}

	if cfg.AdvertiseAddr != "" && !isValidAddress(cfg.AdvertiseAddr) {
		v.addError("computer.advertise_addr", "invalid advertise address format, expected host:port")
	}

	if cfg.Workers < 1 {
		v.addError("computer.workers", "workers must be at least 1")
	}
	if cfg.RequestTimeout <= 0 {
		v.addError("computer.request_timeout", "request timeout must be positive")
	}
	if cfg.RegisterAttempts < 1 {
		v.addError("computer.register_attempts", "register attempts must be at least 1")
	}
}

func (v *Validator) validateJobConfig(cfg *JobConfig) {
	if cfg.BaseLevel < 0 {
		v.addError("job.base_level", "base level must be non-negative")
	}
	if cfg.Timeout < 0 {
		v.addError("job.timeout", "timeout must be non-negative")
	}
}

func (v *Validator) validateLoggingConfig(cfg *LoggingConfig) {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if cfg.Level == "" {
		v.addError("logging.level", "log level is required")
	} else if !validLevels[strings.ToLower(cfg.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", cfg.Level))
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if cfg.Format == "" {
		v.addError("logging.format", "log format is required")
	} else if !validFormats[strings.ToLower(cfg.Format)] {
		v.addError("logging.format", fmt.Sprintf("invalid log format '%s', must be one of: json, console", cfg.Format))
	}

	validOutputs := map[string]bool{
		"stdout": true,
		"stderr": true,
		"file":   true,
		"both":   true,
	}
	output := strings.ToLower(cfg.Output)
	if cfg.Output != "" && !validOutputs[output] {
		v.addError("logging.output", fmt.Sprintf("invalid log output '%s', must be one of: stdout, stderr, file, both", cfg.Output))
	}
	if (output == "file" || output == "both") && cfg.FilePath == "" {
		v.addError("logging.file_path", "file path is required when logging to a file")
	}
}

// isValidAddress checks if the address is a valid host:port format.
func isValidAddress(addr string) bool {
	if addr == "" {
		return false
	}

	if strings.HasPrefix(addr, ":") {
		port := strings.TrimPrefix(addr, ":")
		if port == "" {
			return false
		}
		_, err := net.LookupPort("tcp", port)
		return err == nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if port == "" {
		return false
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return false
	}

	// empty host means all interfaces
	if host != "" {
		if ip := net.ParseIP(host); ip == nil {
			if !isValidHostname(host) {
				return false
			}
		}
	}

	return true
}

// isValidHostname performs basic hostname validation.
func isValidHostname(hostname string) bool {
	if len(hostname) == 0 || len(hostname) > 253 {
		return false
	}

	labels := strings.Split(hostname, ".")
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if !isAlphanumeric(label[0]) || !isAlphanumeric(label[len(label)-1]) {
			return false
		}
		for _, c := range label {
			if !isAlphanumeric(byte(c)) && c != '-' {
				return false
			}
		}
	}

	return true
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}

// LoadAndValidate loads configuration from a file and validates it.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Schema represents a configuration schema for documentation.
type Schema struct {
	Fields []FieldSchema
}

// FieldSchema describes a configuration field.
type FieldSchema struct {
	Path        string
	Type        string
	Required    bool
	Default     string
	Description string
	EnvVar      string
	Constraints []string
}

// GetSchema returns the configuration schema.
func GetSchema() *Schema {
	return &Schema{
		Fields: []FieldSchema{
			{Path: "space.address", Type: "string", Required: true, Default: ":8600", Description: "Space HTTP listen address", EnvVar: "TS_SPACE_ADDRESS", Constraints: []string{"valid host:port format"}},
			{Path: "space.dispatch_concurrency", Type: "int", Default: "1", Description: "Tasks in flight per computer that does not announce workers", EnvVar: "TS_SPACE_DISPATCH_CONCURRENCY", Constraints: []string{"at least 1"}},
			{Path: "space.health_interval", Type: "duration", Default: "10s", Description: "Interval between computer pings, 0 disables them", EnvVar: "TS_SPACE_HEALTH_INTERVAL", Constraints: []string{"non-negative"}},
			{Path: "space.max_failures", Type: "int", Default: "3", Description: "Failed pings before a computer is removed", EnvVar: "TS_SPACE_MAX_FAILURES", Constraints: []string{"at least 1 if health checks are enabled"}},
			{Path: "space.request_timeout", Type: "duration", Default: "5s", Description: "Timeout of pings and shared value forwarding", EnvVar: "TS_SPACE_REQUEST_TIMEOUT", Constraints: []string{"positive"}},
			{Path: "space.execute_timeout", Type: "duration", Default: "10m", Description: "Timeout of one remote task execution", EnvVar: "TS_SPACE_EXECUTE_TIMEOUT", Constraints: []string{"positive"}},
			{Path: "space.take_wait", Type: "duration", Default: "30s", Description: "Long-poll window of result takes", EnvVar: "TS_SPACE_TAKE_WAIT", Constraints: []string{"at least 1s"}},
			{Path: "space.exit_computers_on_stop", Type: "bool", Default: "false", Description: "Tell computers to exit when the space stops", EnvVar: "TS_SPACE_EXIT_COMPUTERS_ON_STOP"},
			{Path: "computer.name", Type: "string", Description: "Computer name, random when empty", EnvVar: "TS_COMPUTER_NAME"},
			{Path: "computer.space_addr", Type: "string", Required: true, Default: "localhost:8600", Description: "Space address", EnvVar: "TS_COMPUTER_SPACE_ADDR", Constraints: []string{"valid host:port format"}},
			{Path: "computer.address", Type: "string", Required: true, Default: ":8601", Description: "Computer HTTP listen address", EnvVar: "TS_COMPUTER_ADDRESS", Constraints: []string{"valid host:port format"}},
			{Path: "computer.advertise_addr", Type: "string", Description: "Address the space calls back, defaults to address", EnvVar: "TS_COMPUTER_ADVERTISE_ADDR", Constraints: []string{"valid host:port format"}},
			{Path: "computer.workers", Type: "int", Default: "1", Description: "Tasks executed concurrently", EnvVar: "TS_COMPUTER_WORKERS", Constraints: []string{"at least 1"}},
			{Path: "computer.labels", Type: "map[string]string", Description: "Computer labels", EnvVar: "TS_COMPUTER_LABELS", Constraints: []string{"key=value,key=value"}},
			{Path: "computer.request_timeout", Type: "duration", Default: "5s", Description: "Timeout of requests to the space", EnvVar: "TS_COMPUTER_REQUEST_TIMEOUT", Constraints: []string{"positive"}},
			{Path: "computer.register_attempts", Type: "int", Default: "10", Description: "Registration attempts before giving up", EnvVar: "TS_COMPUTER_REGISTER_ATTEMPTS", Constraints: []string{"at least 1"}},
			{Path: "job.cities_file", Type: "string", Description: "YAML cities file, the demo instance when empty", EnvVar: "TS_JOB_CITIES_FILE"},
			{Path: "job.base_level", Type: "int", Default: "2", Description: "Level at which branch-and-bound tasks stop splitting", EnvVar: "TS_JOB_BASE_LEVEL", Constraints: []string{"non-negative"}},
			{Path: "job.timeout", Type: "duration", Default: "1h", Description: "Job deadline, 0 for none", EnvVar: "TS_JOB_TIMEOUT", Constraints: []string{"non-negative"}},
			{Path: "logging.level", Type: "string", Required: true, Default: "info", Description: "Log level", EnvVar: "TS_LOG_LEVEL", Constraints: []string{"one of: debug, info, warn, error"}},
			{Path: "logging.format", Type: "string", Required: true, Default: "console", Description: "Log format", EnvVar: "TS_LOG_FORMAT", Constraints: []string{"one of: json, console"}},
			{Path: "logging.output", Type: "string", Default: "stderr", Description: "Log output", EnvVar: "TS_LOG_OUTPUT", Constraints: []string{"one of: stdout, stderr, file, both"}},
			{Path: "logging.file_path", Type: "string", Description: "Log file, rotated", EnvVar: "TS_LOG_FILE_PATH", Constraints: []string{"required for file output"}},
		},
	}
}
