// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// TwilioConfig holds the telephony account credentials.
type TwilioConfig struct {
	AccountSid string `mapstructure:"account_sid" validate:"required"`
	AuthToken  string `mapstructure:"auth_token" validate:"required"`
	FromNumber string `mapstructure:"from_number"`
}

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogDir   string `mapstructure:"log_dir"`

	// PublicHost is the externally reachable base host (no scheme), used to
	// build the wss:// media stream URL handed to the telephony provider.
	PublicHost string `mapstructure:"public_host" validate:"required"`

	ElevenlabsApiKey string       `mapstructure:"elevenlabs_api_key" validate:"required"`
	TwilioConfig     TwilioConfig `mapstructure:"twilio" validate:"required"`
	SendgridApiKey   string       `mapstructure:"sendgrid_api_key" validate:"required"`

	EmailFromName string `mapstructure:"email_from_name" validate:"required"`
	EmailFromAddr string `mapstructure:"email_from_addr" validate:"required,email"`
	FallbackEmail string `mapstructure:"fallback_email" validate:"required,email"`

	TenantRegistryPath string `mapstructure:"tenant_registry_path" validate:"required"`
	CalleeListPath     string `mapstructure:"callee_list_path" validate:"required"`
	CallerMemoryPath   string `mapstructure:"caller_memory_path" validate:"required"`
}

// reading config and initializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env variables.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	// keeping watch on https://github.com/spf13/viper/issues/188

	v.SetDefault("SERVICE_NAME", "receptionist-api")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 9090)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_DIR", "")
	v.SetDefault("PUBLIC_HOST", "")

	v.SetDefault("ELEVENLABS_API_KEY", "")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("TWILIO__ACCOUNT_SID", "")
	v.SetDefault("TWILIO__AUTH_TOKEN", "")
	v.SetDefault("TWILIO__FROM_NUMBER", "")

	v.SetDefault("EMAIL_FROM_NAME", "AI Receptionist")
	v.SetDefault("EMAIL_FROM_ADDR", "")
	v.SetDefault("FALLBACK_EMAIL", "")

	v.SetDefault("TENANT_REGISTRY_PATH", "tenants.json")
	v.SetDefault("CALLEE_LIST_PATH", "Callee_list.txt")
	v.SetDefault("CALLER_MEMORY_PATH", "callers.db")
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// validating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
