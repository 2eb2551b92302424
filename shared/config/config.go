package config

import (
	"os"
	"strings"
	"time"

	"github.com/draftea/order-saga/shared/gateway"
	sharedinfra "github.com/draftea/order-saga/shared/infrastructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Common holds the settings every participant reads
type Common struct {
	ServiceName string    `mapstructure:"service_name"`
	Env         string    `mapstructure:"env"`
	Port        string    `mapstructure:"port"`
	Broker      Broker    `mapstructure:"broker"`
	AWS         AWS       `mapstructure:"aws"`
	Database    Database  `mapstructure:"database"`
	Gateway     Gateway   `mapstructure:"gateway"`
	Telemetry   Telemetry `mapstructure:"telemetry"`
	Logging     Logging   `mapstructure:"logging"`
}

type Broker struct {
	Driver             string        `mapstructure:"driver"`
	URL                string        `mapstructure:"url"`
	ConnectMaxAttempts uint          `mapstructure:"connect_max_attempts"`
	ConnectBackoff     time.Duration `mapstructure:"connect_backoff"`
	Workers            int           `mapstructure:"workers"`
	MaxReceiveCount    int           `mapstructure:"max_receive_count"`
}

type AWS struct {
	Region      string `mapstructure:"region"`
	EndpointSNS string `mapstructure:"endpoint_sns"`
	EndpointSQS string `mapstructure:"endpoint_sqs"`
}

// Database is optional; an empty URL selects the in-memory stores
type Database struct {
	URL string `mapstructure:"url"`
}

type Gateway struct {
	Latency       time.Duration `mapstructure:"latency"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    uint          `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type Telemetry struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type Logging struct {
	Level string `mapstructure:"level"`
}

// Load reads the optional JSON file named after ENVIRONMENT from the config directories, then
// applies PREFIX_* environment overrides. Defaults and env bindings set by defaults are applied
// before either source; an error from defaults aborts loading.
func Load(envPrefix string, out interface{}, defaults func(v *viper.Viper) error, configDirs ...string) error {
	v := viper.New()
	v.SetConfigName(getConfigName())
	v.SetConfigType("json")
	for _, dir := range configDirs {
		v.AddConfigPath(dir)
	}

	// Allow environment variables to override config
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setCommonDefaults(v)
	if defaults != nil {
		if err := defaults(v); err != nil {
			return errors.Wrap(err, "error applying config defaults")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "error reading config file")
		}
	}

	if err := v.Unmarshal(out); err != nil {
		return errors.Wrap(err, "error unmarshaling config")
	}
	return nil
}

func getConfigName() string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		return "local"
	}
	return env
}

// setCommonDefaults sets defaults from unprefixed environment variables for compatibility
// with the docker-compose setup (BROKER_URL, PORT, DATABASE_URL...)
func setCommonDefaults(v *viper.Viper) {
	v.SetDefault("env", GetEnv("ENV", "local"))

	v.SetDefault("broker.driver", GetEnv("BROKER_DRIVER", sharedinfra.DriverSNSSQS))
	v.SetDefault("broker.url", GetEnv("BROKER_URL", ""))
	v.SetDefault("broker.connect_max_attempts", 10)
	v.SetDefault("broker.connect_backoff", time.Second)
	v.SetDefault("broker.workers", 4)
	v.SetDefault("broker.max_receive_count", 5)

	v.SetDefault("aws.region", GetEnv("AWS_DEFAULT_REGION", "us-east-1"))
	v.SetDefault("aws.endpoint_sns", GetEnv("AWS_ENDPOINT_URL_SNS", ""))
	v.SetDefault("aws.endpoint_sqs", GetEnv("AWS_ENDPOINT_URL_SQS", ""))

	v.SetDefault("database.url", GetEnv("DATABASE_URL", ""))

	v.SetDefault("gateway.latency", 0)
	v.SetDefault("gateway.timeout", 5*time.Second)
	v.SetDefault("gateway.max_retries", 2)
	v.SetDefault("gateway.retry_interval", 200*time.Millisecond)

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.otlp_endpoint", GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""))

	v.SetDefault("logging.level", GetEnv("LOG_LEVEL", "info"))
}

// GetEnv returns the environment variable or defaultValue when unset
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// BrokerConfig converts the settings for the broker factory
func (c *Common) BrokerConfig(group string) sharedinfra.BrokerConfig {
	return sharedinfra.BrokerConfig{
		Driver:             c.Broker.Driver,
		URL:                c.Broker.URL,
		Group:              group,
		Workers:            c.Broker.Workers,
		MaxReceiveCount:    c.Broker.MaxReceiveCount,
		ConnectMaxAttempts: c.Broker.ConnectMaxAttempts,
		ConnectBackoff:     c.Broker.ConnectBackoff,
		AWS: sharedinfra.AWSConfig{
			Region:      c.AWS.Region,
			EndpointSNS: c.AWS.EndpointSNS,
			EndpointSQS: c.AWS.EndpointSQS,
		},
	}
}

// GatewayConfig converts the settings for the simulated external call
func (c *Common) GatewayConfig() gateway.Config {
	return gateway.Config{
		Latency:       c.Gateway.Latency,
		Timeout:       c.Gateway.Timeout,
		MaxRetries:    c.Gateway.MaxRetries,
		RetryInterval: c.Gateway.RetryInterval,
	}
}
