package config

import (
	"path/filepath"
	"runtime"
	"time"

	"github.com/draftea/order-saga/payment-service/domain"
	sharedconfig "github.com/draftea/order-saga/shared/config"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	sharedconfig.Common `mapstructure:",squash"`
	Payment             Payment `mapstructure:"payment"`
}

type Payment struct {
	// InsufficiencyThreshold is the highest price that is charged successfully
	InsufficiencyThreshold float64 `mapstructure:"insufficiency_threshold"`
}

func ReadConfig() (*Config, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("unable to get current file")
	}

	var config Config
	err := sharedconfig.Load("PAYMENT", &config, func(v *viper.Viper) error {
		v.SetDefault("service_name", "payment-service")
		v.SetDefault("port", sharedconfig.GetEnv("PORT", "3003"))
		v.SetDefault("gateway.latency", 1500*time.Millisecond)
		v.SetDefault("payment.insufficiency_threshold", domain.DefaultInsufficiencyThreshold)
		return v.BindEnv("payment.insufficiency_threshold", "PAYMENT_INSUFFICIENCY_THRESHOLD", "INSUFFICIENCY_THRESHOLD")
	}, filepath.Dir(filename), ".")
	if err != nil {
		return nil, err
	}

	return &config, nil
}

// ChargePolicy builds the charge decision policy from the configured threshold
func (c *Config) ChargePolicy() (domain.ChargePolicy, error) {
	return domain.NewChargePolicy(c.Payment.InsufficiencyThreshold)
}
