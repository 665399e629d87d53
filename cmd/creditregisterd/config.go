package main

import (
	"errors"
	"os"
	"strconv"
	"studentscorner-backend/internal/batch"
	"studentscorner-backend/internal/components/configutil"
	"studentscorner-backend/internal/scrapers/studentscorner"
	"time"

	"dario.cat/mergo"
)

type PortalConfig struct {
	BaseUrl            string `json:"base_url"`
	CreditRegisterPath string `json:"credit_register_path"`
	// RequestTimeout is in seconds.
	RequestTimeout int `json:"request_timeout"`
}

type BatchConfig struct {
	Workers int `json:"workers"`
	// TaskTimeout is in seconds.
	TaskTimeout int `json:"task_timeout"`
}

type Config struct {
	Host           string       `json:"host"`
	Port           int          `json:"port"`
	AllowedOrigins []string     `json:"allowed_origins"`
	Portal         PortalConfig `json:"portal"`
	Batch          BatchConfig  `json:"batch"`
}

func defaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           5000,
		AllowedOrigins: []string{"*"},
		Portal: PortalConfig{
			BaseUrl:            studentscorner.DefaultBaseUrl,
			CreditRegisterPath: studentscorner.DefaultCreditRegisterPath,
			RequestTimeout:     30,
		},
		Batch: BatchConfig{
			Workers:     batch.DefaultWorkers,
			TaskTimeout: int(batch.DefaultTaskTimeout / time.Second),
		},
	}
}

// LoadConfig reads path (and its .local override) on top of the defaults, a
// missing config file is not an error. HOST and PORT from the environment take
// precedence over both.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		fromFile, err := configutil.ReadConfig[Config](path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
		if err == nil {
			err = mergo.Merge(&fromFile, cfg)
			if err != nil {
				return Config{}, err
			}
			cfg = fromFile
		}
	}

	host, ok := os.LookupEnv("HOST")
	if ok && host != "" {
		cfg.Host = host
	}
	port, ok := os.LookupEnv("PORT")
	if ok && port != "" {
		parsed, err := strconv.Atoi(port)
		if err != nil {
			return Config{}, err
		}
		cfg.Port = parsed
	}

	return cfg, nil
}

func (c Config) PortalOptions() studentscorner.ClientOptions {
	return studentscorner.ClientOptions{
		BaseUrl:            c.Portal.BaseUrl,
		CreditRegisterPath: c.Portal.CreditRegisterPath,
		RequestTimeout:     time.Duration(c.Portal.RequestTimeout) * time.Second,
	}
}

func (c Config) BatchOptions() batch.Options {
	return batch.Options{
		Workers:     c.Batch.Workers,
		TaskTimeout: time.Duration(c.Batch.TaskTimeout) * time.Second,
	}
}
