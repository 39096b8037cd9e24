package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/himanishpuri/songid/internal/recognize"
	"github.com/himanishpuri/songid/internal/service"
	"github.com/himanishpuri/songid/pkg/logger"
	"github.com/joho/godotenv"
)

// Global flags
var (
	dbPath   string
	tempDir  string
	interval time.Duration
	endpoint string
	timezone string
	logLevel string
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func registerFlags() {
	flag.StringVar(&dbPath, "db", getEnvOrDefault("SONGID_DB_PATH", "songid.sqlite3"), "Path to the recognition history database")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("SONGID_TEMP_DIR", os.TempDir()), "Directory for temporary audio conversion files")
	flag.DurationVar(&interval, "interval", getDurationOrDefault("SONGID_INTERVAL", service.DefaultInterval), "Length of each listening window")
	flag.StringVar(&endpoint, "endpoint", getEnvOrDefault("SONGID_ENDPOINT", recognize.DefaultBaseURL), "Recognition service base URL")
	flag.StringVar(&timezone, "timezone", getEnvOrDefault("SONGID_TIMEZONE", recognize.DefaultTimezone), "Timezone sent with recognition requests")
	flag.StringVar(&logLevel, "log-level", getEnvOrDefault(logger.LevelEnv, "INFO"), "Log level (DEBUG, INFO, WARN, ERROR)")
	flag.Usage = printUsage
}

// createService creates a service with the configured options
func createService() (*service.Service, error) {
	log := logger.GetLogger()
	client := recognize.New(
		recognize.WithBaseURL(endpoint),
		recognize.WithTimezone(timezone),
		recognize.WithLogger(log.With("recognize")),
	)
	return service.New(
		service.WithDBPath(dbPath),
		service.WithTempDir(tempDir),
		service.WithInterval(interval),
		service.WithRecognizer(client),
		service.WithLogger(log),
	)
}

func main() {
	_ = godotenv.Load()

	registerFlags()
	flag.Parse()

	log := logger.GetLogger()
	if level, err := logger.ParseLevel(logLevel); err != nil {
		log.Warnf("Ignoring log level: %v", err)
	} else {
		log.SetLevel(level)
	}

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]
	log.Debugf("Executing command: %s", command)

	var err error
	switch command {
	case "signature":
		err = handleSignature(args)
	case "decode":
		err = handleDecode(args)
	case "recognize":
		err = handleRecognize(args)
	case "listen":
		err = handleListen(args)
	case "devices":
		err = handleDevices()
	case "history":
		err = handleHistory(args)
	case "export":
		err = handleExport(args)
	case "delete":
		err = handleDelete(args)
	case "spectrogram":
		err = handleSpectrogram(args)
	case "probe":
		err = handleProbe(args)
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("❌ %v\n", err)
		log.Errorf("%s failed: %v", command, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("songid - identify songs from audio files or a live input")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>         History database (env: SONGID_DB_PATH, default: songid.sqlite3)")
	fmt.Println("  --temp <dir>        Temporary directory for audio conversion (env: SONGID_TEMP_DIR)")
	fmt.Println("  --interval <dur>    Listening window (env: SONGID_INTERVAL, default: 12s)")
	fmt.Println("  --endpoint <url>    Recognition service (env: SONGID_ENDPOINT)")
	fmt.Println("  --timezone <tz>     Timezone sent with requests (env: SONGID_TIMEZONE, default: Europe/London)")
	fmt.Println("  --log-level <lvl>   Log level (env: SONGID_LOG_LEVEL, default: INFO)")
	fmt.Println("\nUsage:")
	fmt.Println("  songid [global-options] signature <audio_file> [--json]")
	fmt.Println("  songid [global-options] decode <data_uri|signature_file>")
	fmt.Println("  songid [global-options] recognize <audio_file> [--json]")
	fmt.Println("  songid [global-options] listen [--device <index>]")
	fmt.Println("  songid [global-options] devices")
	fmt.Println("  songid [global-options] history [--limit <n>]")
	fmt.Println("  songid [global-options] export <file.csv|->")
	fmt.Println("  songid [global-options] delete <recognition_id>")
	fmt.Println("  songid [global-options] spectrogram <audio_file> <image.png>")
	fmt.Println("  songid [global-options] probe <audio_file>")
	fmt.Println("\nExamples:")
	fmt.Println("  # Identify a recording")
	fmt.Println("  songid recognize clip.mp3")
	fmt.Println()
	fmt.Println("  # Listen on the second input device in 10 second windows")
	fmt.Println("  songid --interval 10s listen --device 1")
}
