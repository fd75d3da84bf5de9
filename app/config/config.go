package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "ERP"

type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Portal  PortalConfig  `mapstructure:"portal"`
	Query   QueryConfig   `mapstructure:"query"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Etcd    EtcdConfig    `mapstructure:"etcd"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// APIConfig configures the reference ERP API.
type APIConfig struct {
	Addr string `mapstructure:"addr"`
	// Store is "memory" or "mongo".
	Store      string `mapstructure:"store"`
	AdminToken string `mapstructure:"admin_token"`
}

type PortalConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	Token          string        `mapstructure:"token"`
	GRPCAddr       string        `mapstructure:"grpc_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// Bus is "none", "redis" or "etcd".
	Bus     string `mapstructure:"bus"`
	Persist bool   `mapstructure:"persist"`
}

type QueryConfig struct {
	StaleTime      time.Duration `mapstructure:"stale_time"`
	GCTime         time.Duration `mapstructure:"gc_time"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	Channel  string `mapstructure:"channel"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	Prefix      string        `mapstructure:"prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	LeaseTTL    time.Duration `mapstructure:"lease_ttl"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func Default() *Config {
	return &Config{
		API: APIConfig{
			Addr:  ":8080",
			Store: "memory",
		},
		Portal: PortalConfig{
			APIURL:         "http://localhost:8080",
			GRPCAddr:       ":1234",
			RequestTimeout: 10 * time.Second,
			Bus:            "none",
		},
		Query: QueryConfig{
			GCTime:         5 * time.Minute,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			RetryMaxDelay:  30 * time.Second,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "erp:invalidations",
		},
		Etcd: EtcdConfig{
			Endpoints:   []string{"localhost:2379"},
			Prefix:      "/erp/invalidations/",
			DialTimeout: 5 * time.Second,
			LeaseTTL:    30 * time.Second,
		},
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "erp",
			ConnectTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":2112",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, or from erp.yaml in the working
// directory when path is empty, and from environment variables.
// Environment variables use the prefix "ERP" with dots replaced by
// underscores: "redis.addr" becomes "ERP_REDIS_ADDR".
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("erp")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.API.Store {
	case "memory", "mongo":
	default:
		return fmt.Errorf("api.store: unknown store %q", c.API.Store)
	}
	switch c.Portal.Bus {
	case "", "none", "redis", "etcd":
	default:
		return fmt.Errorf("portal.bus: unknown bus %q", c.Portal.Bus)
	}
	if c.API.Store == "mongo" && c.Mongo.ConnectTimeout <= 0 {
		return fmt.Errorf("mongo.connect_timeout must be positive")
	}
	if c.Query.MaxRetries < 0 {
		return fmt.Errorf("query.max_retries must not be negative")
	}
	return nil
}

// bindEnvs registers every key of cfg so that environment variables are
// seen by Unmarshal even without a config file.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
