package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, loaded from the environment. A
// .env file in the working directory is read first when present.
type Config struct {
	Addr              string `env:"ADDR" envDefault:":8080"`
	RoomCodeLength    int    `env:"ROOM_CODE_LENGTH" envDefault:"6"`
	MaxPlayersPerRoom int    `env:"MAX_PLAYERS_PER_ROOM" envDefault:"20"`
	MinPlayersToStart int    `env:"MIN_PLAYERS_TO_START" envDefault:"2"`
	DefaultTeamCount  int    `env:"DEFAULT_TEAM_COUNT" envDefault:"2"`
	CodeAttempts      int    `env:"CODE_ATTEMPTS" envDefault:"32"`
}

func Load() (Config, error) {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
