// Package config loads the runtime configuration of the two binaries
// from the environment.
package config

import "github.com/caarlos0/env/v11"

// Server configures the Restate service endpoint binary.
type Server struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":9090"`
}

// Gateway configures the HTTP ingress binary.
type Gateway struct {
	ListenAddr string `env:"GATEWAY_LISTEN_ADDR" envDefault:":8000"`
	IngressURL string `env:"RESTATE_INGRESS_URL" envDefault:"http://localhost:8080"`
	APIKey     string `env:"GATEWAY_API_KEY"`
}

func LoadServer() (Server, error) {
	var c Server
	err := env.Parse(&c)
	return c, err
}

func LoadGateway() (Gateway, error) {
	var c Gateway
	err := env.Parse(&c)
	return c, err
}
