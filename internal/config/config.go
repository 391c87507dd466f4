package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/task-space/internal/computer"
	"yqhp/task-space/internal/space"
	"yqhp/task-space/pkg/logger"
)

// Config represents the complete configuration for a space, its computers and jobs.
type Config struct {
	Space    SpaceConfig    `yaml:"space"`
	Computer ComputerConfig `yaml:"computer"`
	Job      JobConfig      `yaml:"job"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SpaceConfig holds space node configuration.
type SpaceConfig struct {
	Address             string        `yaml:"address" env:"TS_SPACE_ADDRESS"`
	DispatchConcurrency int           `yaml:"dispatch_concurrency" env:"TS_SPACE_DISPATCH_CONCURRENCY"`
	HealthInterval      time.Duration `yaml:"health_interval" env:"TS_SPACE_HEALTH_INTERVAL"`
	MaxFailures         int           `yaml:"max_failures" env:"TS_SPACE_MAX_FAILURES"`
	RequestTimeout      time.Duration `yaml:"request_timeout" env:"TS_SPACE_REQUEST_TIMEOUT"`
	ExecuteTimeout      time.Duration `yaml:"execute_timeout" env:"TS_SPACE_EXECUTE_TIMEOUT"`
	TakeWait            time.Duration `yaml:"take_wait" env:"TS_SPACE_TAKE_WAIT"`
	ExitComputersOnStop bool          `yaml:"exit_computers_on_stop" env:"TS_SPACE_EXIT_COMPUTERS_ON_STOP"`
}

// ComputerConfig holds computer node configuration.
type ComputerConfig struct {
	Name             string            `yaml:"name" env:"TS_COMPUTER_NAME"`
	SpaceAddr        string            `yaml:"space_addr" env:"TS_COMPUTER_SPACE_ADDR"`
	Address          string            `yaml:"address" env:"TS_COMPUTER_ADDRESS"`
	AdvertiseAddr    string            `yaml:"advertise_addr" env:"TS_COMPUTER_ADVERTISE_ADDR"`
	Workers          int               `yaml:"workers" env:"TS_COMPUTER_WORKERS"`
	Labels           map[string]string `yaml:"labels" env:"TS_COMPUTER_LABELS"`
	RequestTimeout   time.Duration     `yaml:"request_timeout" env:"TS_COMPUTER_REQUEST_TIMEOUT"`
	RegisterAttempts int               `yaml:"register_attempts" env:"TS_COMPUTER_REGISTER_ATTEMPTS"`
}

// JobConfig holds the configuration of a submitted TSP job.
type JobConfig struct {
	CitiesFile string        `yaml:"cities_file" env:"TS_JOB_CITIES_FILE"`
	BaseLevel  int           `yaml:"base_level" env:"TS_JOB_BASE_LEVEL"`
	Timeout    time.Duration `yaml:"timeout" env:"TS_JOB_TIMEOUT"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" env:"TS_LOG_LEVEL"`
	Format   string `yaml:"format" env:"TS_LOG_FORMAT"`
	Output   string `yaml:"output" env:"TS_LOG_OUTPUT"`
	FilePath string `yaml:"file_path" env:"TS_LOG_FILE_PATH"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Space: SpaceConfig{
			Address:             ":8600",
			DispatchConcurrency: 1,
			HealthInterval:      10 * time.Second,
			MaxFailures:         3,
			RequestTimeout:      5 * time.Second,
			ExecuteTimeout:      10 * time.Minute,
			TakeWait:            30 * time.Second,
		},
		Computer: ComputerConfig{
			SpaceAddr:        "localhost:8600",
			Address:          ":8601",
			Workers:          1,
			Labels:           make(map[string]string),
			RequestTimeout:   5 * time.Second,
			RegisterAttempts: 10,
		},
		Job: JobConfig{
			BaseLevel: 2,
			Timeout:   time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

// SpaceOptions converts the space section into the options of a space.
func (c *Config) SpaceOptions() *space.Config {
	opts := space.DefaultConfig()
	opts.DispatchConcurrency = c.Space.DispatchConcurrency
	opts.HealthCheckInterval = c.Space.HealthInterval
	opts.MaxFailures = c.Space.MaxFailures
	opts.RequestTimeout = c.Space.RequestTimeout
	opts.ExitComputersOnStop = c.Space.ExitComputersOnStop
	return opts
}

// ComputerOptions converts the computer section into the options of a computer.
// The callback address is the advertised one when set.
func (c *Config) ComputerOptions() *computer.Config {
	opts := computer.DefaultConfig()
	if c.Computer.Name != "" {
		opts.Name = c.Computer.Name
	}
	opts.Address = c.Computer.AdvertiseAddr
	if opts.Address == "" {
		opts.Address = c.Computer.Address
	}
	opts.Workers = c.Computer.Workers
	opts.Labels = c.Computer.Labels
	opts.RequestTimeout = c.Computer.RequestTimeout
	opts.RegisterAttempts = c.Computer.RegisterAttempts
	return opts
}

// LoggerOptions converts the logging section into logger options.
func (c *Config) LoggerOptions() *logger.Config {
	return &logger.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		Output:     c.Logging.Output,
		FilePath:   c.Logging.FilePath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "TS_",
		cmdArgs:   make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the prefix for environment variables.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithCmdArgs sets command-line arguments for configuration override.
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("从文件加载配置失败: %w", err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	if err := l.applyCmdOverrides(cfg); err != nil {
		return nil, fmt.Errorf("应用命令行参数覆盖失败: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	return l.applyEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// applyEnvToStruct recursively applies environment variables to struct fields.
// Tags carry the default TS_ prefix, which is swapped for a custom one.
func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		if l.envPrefix != "TS_" {
			envTag = l.envPrefix + strings.TrimPrefix(envTag, "TS_")
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", envTag, fieldType.Name, err)
		}
	}

	return nil
}

// applyCmdOverrides applies command-line argument overrides to the configuration.
func (l *Loader) applyCmdOverrides(cfg *Config) error {
	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("设置配置值 %s 失败: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a configuration value by its dot-notation YAML path,
// e.g. "space.take_wait".
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("未知的配置路径: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("期望 %s 是结构体，实际是 %s", part, field.Kind())
		}
		v = field
	}

	return nil
}

// fieldByYAMLName finds a struct field by its yaml tag or, failing that, its Go name.
func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == name || strings.EqualFold(t.Field(i).Name, strings.ReplaceAll(name, "_", "")) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("无法设置字段")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("无效的时间格式: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("无效的整数: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("无效的布尔值: %w", err)
		}
		field.SetBool(b)

	case reflect.Map:
		// key=value,key=value
		if field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.String {
			m := make(map[string]string)
			for _, pair := range strings.Split(value, ",") {
				kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
				if len(kv) == 2 {
					m[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
				}
			}
			field.Set(reflect.ValueOf(m))
		} else {
			return fmt.Errorf("不支持的 map 类型")
		}

	default:
		return fmt.Errorf("不支持的字段类型: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := c.Serialize()
	clone, _ := ParseConfig(data)
	return clone
}
