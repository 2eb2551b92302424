package config

import (
	"path/filepath"
	"runtime"
	"time"

	sharedconfig "github.com/draftea/order-saga/shared/config"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	sharedconfig.Common `mapstructure:",squash"`
	Inventory           Inventory `mapstructure:"inventory"`
}

type Inventory struct {
	// InitialStock seeds every SKU the first time an order touches it
	InitialStock int `mapstructure:"initial_stock"`
}

func ReadConfig() (*Config, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("unable to get current file")
	}

	var config Config
	err := sharedconfig.Load("INVENTORY", &config, func(v *viper.Viper) error {
		v.SetDefault("service_name", "inventory-service")
		v.SetDefault("port", sharedconfig.GetEnv("PORT", "3002"))
		v.SetDefault("gateway.latency", time.Second)
		v.SetDefault("inventory.initial_stock", 100)
		return v.BindEnv("inventory.initial_stock", "INVENTORY_INITIAL_STOCK", "INITIAL_STOCK")
	}, filepath.Dir(filename), ".")
	if err != nil {
		return nil, err
	}

	if config.Inventory.InitialStock < 0 {
		return nil, errors.Errorf("inventory.initial_stock must not be negative, got %d", config.Inventory.InitialStock)
	}
	return &config, nil
}
