// Package config provides property-based tests for configuration handling.
// Property 1: For any valid Configuration object, serializing it and then deserializing
// should produce an equivalent object.
// Property 2: A command-line override always wins over the file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

// TestConfigRoundTripProperty tests Property 1.
// deserialize(serialize(config)) == config
func TestConfigRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("config round-trip preserves data", prop.ForAll(
		func(config *Config) bool {
			yamlBytes, err := config.Serialize()
			if err != nil {
				return false
			}

			parsed, err := ParseConfig(yamlBytes)
			if err != nil {
				return false
			}

			return configsEqual(config, parsed)
		},
		genConfig(),
	))

	properties.Property("generated configs are valid", prop.ForAll(
		func(config *Config) bool {
			return config.Validate() == nil
		},
		genConfig(),
	))

	properties.TestingRun(t)
}

// TestCmdOverridePrecedenceProperty tests Property 2.
func TestCmdOverridePrecedenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	properties.Property("flag beats env beats file", prop.ForAll(
		func(filePort, envPort, cmdPort int) bool {
			content := fmt.Sprintf("space:\n  address: \":%d\"\n", filePort)
			if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
				return false
			}
			os.Setenv("TS_SPACE_ADDRESS", fmt.Sprintf(":%d", envPort))
			defer os.Unsetenv("TS_SPACE_ADDRESS")

			cfg, err := NewLoader().
				WithConfigPath(configPath).
				WithCmdArgs(map[string]string{"space.address": fmt.Sprintf(":%d", cmdPort)}).
				Load()
			if err != nil {
				return false
			}
			return cfg.Space.Address == fmt.Sprintf(":%d", cmdPort)
		},
		gen.IntRange(1024, 65535),
		gen.IntRange(1024, 65535),
		gen.IntRange(1024, 65535),
	))

	properties.TestingRun(t)
}

// Generators for property-based testing

func genConfig() gopter.Gen {
	return gopter.CombineGens(
		genSpaceConfig(),
		genComputerConfig(),
		genJobConfig(),
		gen.OneConstOf("debug", "info", "warn", "error"),
	).Map(func(values []interface{}) *Config {
		return &Config{
			Space:    values[0].(SpaceConfig),
			Computer: values[1].(ComputerConfig),
			Job:      values[2].(JobConfig),
			Logging:  LoggingConfig{Level: values[3].(string), Format: "json", Output: "stdout"},
		}
	})
}

func genSpaceConfig() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(1024, 65535),
		gen.IntRange(1, 64),
		gen.IntRange(0, 60),
		gen.IntRange(1, 10),
		gen.IntRange(1, 120),
		gen.Bool(),
	).Map(func(values []interface{}) SpaceConfig {
		return SpaceConfig{
			Address:             fmt.Sprintf(":%d", values[0].(int)),
			DispatchConcurrency: values[1].(int),
			HealthInterval:      time.Duration(values[2].(int)) * time.Second,
			MaxFailures:         values[3].(int),
			RequestTimeout:      5 * time.Second,
			ExecuteTimeout:      time.Minute,
			TakeWait:            time.Duration(values[4].(int)) * time.Second,
			ExitComputersOnStop: values[5].(bool),
		}
	})
}

func genComputerConfig() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(1024, 65535),
		gen.IntRange(1, 256),
		gen.IntRange(1, 50),
		gen.AlphaString(),
	).Map(func(values []interface{}) ComputerConfig {
		return ComputerConfig{
			Name:             values[3].(string),
			SpaceAddr:        "localhost:8600",
			Address:          fmt.Sprintf(":%d", values[0].(int)),
			Workers:          values[1].(int),
			Labels:           map[string]string{},
			RequestTimeout:   time.Second,
			RegisterAttempts: values[2].(int),
		}
	})
}

func genJobConfig() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 10),
		gen.IntRange(0, 3600),
	).Map(func(values []interface{}) JobConfig {
		return JobConfig{
			BaseLevel: values[0].(int),
			Timeout:   time.Duration(values[1].(int)) * time.Second,
		}
	})
}

func configsEqual(a, b *Config) bool {
	return a.Space == b.Space &&
		a.Job == b.Job &&
		a.Logging == b.Logging &&
		a.Computer.Name == b.Computer.Name &&
		a.Computer.Address == b.Computer.Address &&
		a.Computer.Workers == b.Computer.Workers &&
		a.Computer.RegisterAttempts == b.Computer.RegisterAttempts &&
		a.Computer.RequestTimeout == b.Computer.RequestTimeout
}

// BenchmarkConfigRoundTrip benchmarks config round-trip.
func BenchmarkConfigRoundTrip(b *testing.B) {
	config := DefaultConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		yamlBytes, _ := config.Serialize()
		ParseConfig(yamlBytes)
	}
}

func TestConfigRoundTripSpecificCases(t *testing.T) {
	testCases := []struct {
		name   string
		config *Config
	}{
		{
			name:   "default config",
			config: DefaultConfig(),
		},
		{
			name: "health checks disabled",
			config: func() *Config {
				c := DefaultConfig()
				c.Space.HealthInterval = 0
				return c
			}(),
		},
		{
			name: "labelled computer",
			config: func() *Config {
				c := DefaultConfig()
				c.Computer.Labels = map[string]string{"zone": "a", "tier": "cpu"}
				c.Computer.AdvertiseAddr = "10.1.2.3:8601"
				return c
			}(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			yamlBytes, err := tc.config.Serialize()
			assert.NoError(t, err)

			parsed, err := ParseConfig(yamlBytes)
			assert.NoError(t, err)

			assert.Equal(t, tc.config.Space, parsed.Space)
			assert.Equal(t, tc.config.Computer, parsed.Computer)
		})
	}
}
