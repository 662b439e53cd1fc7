package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/pratama/storefront/internal/log"
)

type Application struct {
	Env       string `mapstructure:"env"        json:"env"`
	Host      string `mapstructure:"host"       json:"host"`
	SecretKey string `mapstructure:"secret_key" json:"-"`
	Port      int    `mapstructure:"port"       json:"port"`
}

type Cache struct {
	Host     string `mapstructure:"host"     json:"host"`
	Password string `mapstructure:"password" json:"-"`
	Database int    `mapstructure:"database" json:"database"`
	Port     uint16 `mapstructure:"port"     json:"port"`
}

type Otel struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
}

// Upstream holds the base URLs of the external collaborators the engine talks
// to. The engine is never authoritative for any of them.
type Upstream struct {
	RatesURL       string `mapstructure:"rates_url"       json:"rates_url"`
	InventoryURL   string `mapstructure:"inventory_url"   json:"inventory_url"`
	OrderURL       string `mapstructure:"order_url"       json:"order_url"`
	PaymentURL     string `mapstructure:"payment_url"     json:"payment_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// Pricing carries business policy values the engine applies but never decides.
// Monetary values are kept as strings and parsed into decimals at wiring time
// so no float ever touches them.
type Pricing struct {
	BaseCurrency          string `mapstructure:"base_currency"           json:"base_currency"`
	TaxRate               string `mapstructure:"tax_rate"                json:"tax_rate"`
	FreeShippingThreshold string `mapstructure:"free_shipping_threshold" json:"free_shipping_threshold"`
	FlatShippingFee       string `mapstructure:"flat_shipping_fee"       json:"flat_shipping_fee"`
	RateStalenessMinutes  int    `mapstructure:"rate_staleness_minutes"  json:"rate_staleness_minutes"`
}

// Push identifies the per-session push channel. SessionID keys both the cart
// snapshot and the channel name, so a restarted engine resumes the same
// session.
type Push struct {
	ChannelPrefix string `mapstructure:"channel_prefix" json:"channel_prefix"`
	SessionID     string `mapstructure:"session_id"     json:"session_id"`
}

type Config struct {
	Application `mapstructure:"application" json:"application"`
	Cache       `mapstructure:"cache"       json:"cache"`
	Otel        `mapstructure:"otel"        json:"otel"`
	Upstream    `mapstructure:"upstream"    json:"upstream"`
	Pricing     `mapstructure:"pricing"     json:"pricing"`
	Push        `mapstructure:"push"        json:"push"`
}

var (
	once   sync.Once
	config *Config
)

func Get(c context.Context, filename string) *Config {
	once.Do(func() {
		cfg := Config{}
		logger := zerolog.Ctx(c).
			With().
			Str(log.KeyTag, "config Get").
			Str("filename", filename).
			Logger()

		viper.SetConfigName(filename)
		viper.AddConfigPath("./env")
		viper.SetConfigType("yaml")
		viper.AutomaticEnv()

		logger = logger.With().Str(log.KeyProcess, "reading config").Logger()
		logger.Info().Msg("reading config")
		err := viper.ReadInConfig()
		if err != nil {
			err = fmt.Errorf("failed reading config with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		logger.Info().Msg("read config")

		logger = logger.With().Str(log.KeyProcess, "unmarshaling config").Logger()
		logger.Info().Msg("unmarshaling config")
		err = viper.Unmarshal(&cfg)
		if err != nil {
			err = fmt.Errorf("failed unmarshaling config with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		config = &cfg
		logger = logger.With().Any(log.KeyConfig, cfg).Logger()
		logger.Info().Msg("unmarshaled config")
	})
	return config
}
