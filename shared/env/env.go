package env

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	TelegramBotToken string
	BotPassword      string
	AdminChatID      int64

	RPCURL  string
	Network string

	IndexerURL string
	MempoolURL string

	MongoURI string

	PollIntervalMs    int
	MaxWalletsPerUser int

	Port string
)

// Secrets are acknowledged in the log without their values.
var hiddenKeys = map[string]struct{}{
	"TELEGRAM_BOT_TOKEN": {},
	"BOT_PASSWORD":       {},
	"MONGODB_URI":        {},
}

func getEnv(key string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		log.Printf("INFO: Environment variable %s is not set.", key)
		return ""
	}
	if _, hidden := hiddenKeys[key]; hidden {
		log.Printf("INFO: Loaded %s (value hidden)", key)
	} else {
		log.Printf("INFO: Loaded %s = %s", key, value)
	}
	return value
}

func mustEnv(key string) string {
	value := getEnv(key)
	if value == "" {
		log.Fatalf("FATAL: Environment variable %s is required but not set.", key)
	}
	return value
}

func envInt(key string, fallback int) int {
	raw := getEnv(key)
	if raw == "" {
		log.Printf("INFO: %s not set, defaulting to %d", key, fallback)
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("FATAL: Failed to parse integer environment variable %s='%s': %v", key, raw, err)
	}
	return v
}

func envInt64(key string) int64 {
	raw := getEnv(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Fatalf("FATAL: Failed to parse int64 environment variable %s='%s': %v", key, raw, err)
	}
	return v
}

func LoadEnv() error {
	if err := godotenv.Load(); err != nil {
		log.Println("INFO: .env file not found or error loading, relying on system environment variables.")
	} else {
		log.Println("INFO: .env file loaded successfully.")
	}

	TelegramBotToken = mustEnv("TELEGRAM_BOT_TOKEN")
	BotPassword = getEnv("BOT_PASSWORD")
	AdminChatID = envInt64("ADMIN_CHAT_ID")

	RPCURL = mustEnv("RPC_URL")
	Network = getEnv("NETWORK")
	if Network == "" {
		Network = "mainnet"
		log.Printf("INFO: NETWORK not set, defaulting to %s", Network)
	}
	switch Network {
	case "mainnet", "testnet", "regtest":
	default:
		log.Fatalf("FATAL: NETWORK must be one of mainnet, testnet, regtest; got %q", Network)
	}

	IndexerURL = mustEnv("INDEXER_URL")
	MempoolURL = getEnv("MEMPOOL_URL")

	MongoURI = mustEnv("MONGODB_URI")

	PollIntervalMs = envInt("POLL_INTERVAL_MS", 30000)
	MaxWalletsPerUser = envInt("MAX_WALLETS_PER_USER", 20)

	Port = getEnv("PORT")
	if Port == "" {
		Port = "8080"
		log.Printf("INFO: PORT not set, defaulting to %s", Port)
	}

	if BotPassword == "" {
		log.Println("WARN: BOT_PASSWORD is not set. The legacy password gate is disabled; chats must redeem a code.")
	}
	if AdminChatID == 0 {
		log.Println("WARN: ADMIN_CHAT_ID is missing or invalid (0). Operational logs will not be mirrored to Telegram.")
	}

	log.Println("INFO: Environment variables loading process complete.")
	return nil
}
