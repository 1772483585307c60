package conf

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yola1107/baccarat/library/log"
)

// Bootstrap is the full client configuration.
type Bootstrap struct {
	Server *Server     `yaml:"server"`
	Game   *Game       `yaml:"game"`
	Log    *log.Config `yaml:"log"`
}

// Server holds transport settings. Intervals are in seconds.
type Server struct {
	Endpoint          string `yaml:"endpoint"`
	HeartbeatInterval int64  `yaml:"heartbeat_interval"`
	ConnectTimeout    int64  `yaml:"connect_timeout"`
	WriteTimeout      int64  `yaml:"write_timeout"`
	RetryDelay        int64  `yaml:"retry_delay"`
	MaxRetryAttempts  int32  `yaml:"max_retry_attempts"`
}

type Game struct {
	InitialBalance float64            `yaml:"initial_balance"`
	HistoryCap     int                `yaml:"history_cap"`
	Odds           map[string]float64 `yaml:"odds"`
}

func Default() *Bootstrap {
	return &Bootstrap{
		Server: &Server{
			Endpoint:          "ws://127.0.0.1:3102",
			HeartbeatInterval: 10,
			ConnectTimeout:    5,
			WriteTimeout:      10,
			RetryDelay:        3,
			MaxRetryAttempts:  5,
		},
		Game: &Game{
			InitialBalance: 1000,
			HistoryCap:     200,
			Odds: map[string]float64{
				"player":      1,
				"banker":      0.95,
				"tie":         8,
				"player_pair": 11,
				"banker_pair": 11,
				"lucky6":      12,
				"dragon7":     40,
				"panda8":      25,
			},
		},
		Log: log.DefaultConfig(),
	}
}

// Load reads a yaml file over the defaults.
func Load(path string) (*Bootstrap, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conf %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse conf %q: %w", path, err)
	}
	return c, nil
}

func (s *Server) HeartbeatDuration() time.Duration { return time.Duration(s.HeartbeatInterval) * time.Second }
func (s *Server) ConnectDuration() time.Duration   { return time.Duration(s.ConnectTimeout) * time.Second }
func (s *Server) WriteDuration() time.Duration     { return time.Duration(s.WriteTimeout) * time.Second }
func (s *Server) RetryDuration() time.Duration     { return time.Duration(s.RetryDelay) * time.Second }
