package config

import (
	"errors"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Load reads the optional .env file and validates the settings the server
// cannot run without. The token secret in particular has no fallback: a
// default signing key would make every deployment forgeable.
func Load() error {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	if os.Getenv("JWT_SECRET") == "" {
		return errors.New("JWT_SECRET not set")
	}
	return nil
}

// Port returns the listen port, defaulting to 8080.
func Port() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return port
}
