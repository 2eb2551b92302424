package config

import (
	"path/filepath"
	"runtime"

	sharedconfig "github.com/draftea/order-saga/shared/config"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	sharedconfig.Common `mapstructure:",squash"`
}

func ReadConfig() (*Config, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("unable to get current file")
	}

	var config Config
	err := sharedconfig.Load("ORDER", &config, func(v *viper.Viper) error {
		v.SetDefault("service_name", "order-service")
		v.SetDefault("port", getPort("3001"))
		return nil
	}, filepath.Dir(filename), ".")
	if err != nil {
		return nil, err
	}

	return &config, nil
}

func getPort(defaultPort string) string {
	return sharedconfig.GetEnv("PORT", defaultPort)
}
