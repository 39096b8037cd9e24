//go:build !js && !wasm
// +build !js,!wasm

package main

import (
	"flag"
	"os"
	"strings"

	"github.com/himanishpuri/songid/internal/recognize"
	"github.com/himanishpuri/songid/internal/service"
	"github.com/himanishpuri/songid/pkg/logger"
	"github.com/joho/godotenv"
)

var (
	port           int
	dbPath         string
	tempDir        string
	endpoint       string
	timezone       string
	allowedOrigins string
)

func registerFlags() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("SONGID_DB_PATH", "songid.sqlite3"), "Path to the recognition history database")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("SONGID_TEMP_DIR", os.TempDir()), "Temporary directory")
	flag.StringVar(&endpoint, "endpoint", getEnvOrDefault("SONGID_ENDPOINT", recognize.DefaultBaseURL), "Recognition service base URL")
	flag.StringVar(&timezone, "timezone", getEnvOrDefault("SONGID_TIMEZONE", recognize.DefaultTimezone), "Timezone sent with recognition requests")
	flag.StringVar(&allowedOrigins, "origins", getEnvOrDefault("SONGID_ORIGINS", "*"), "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	_ = godotenv.Load()
	registerFlags()
	flag.Parse()

	log := logger.GetLogger()

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	svc, err := service.New(
		service.WithDBPath(dbPath),
		service.WithTempDir(tempDir),
		service.WithRecognizer(recognize.New(
			recognize.WithBaseURL(endpoint),
			recognize.WithTimezone(timezone),
			recognize.WithLogger(log.With("recognize")),
		)),
		service.WithLogger(log),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer svc.Close()

	config := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		TempDir:        tempDir,
		AllowedOrigins: origins,
	}

	server := NewServer(svc, config)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
