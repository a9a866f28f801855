package main

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerAddr  string `envconfig:"SERVER_ADDR" default:"localhost:12345"`
	DownloadDir string `envconfig:"DOWNLOAD_DIR" default:"downloads"`
	// CLIENT_COLOURS enables colorized output for better readability
	Colours bool `envconfig:"CLIENT_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
