package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port          int
	NatsURL       string
	NatsToken     string
	BotUsername   string
	OpenAIAPIKey  string
	Model         string
	DatabaseURL   string
	SQLitePath    string
	NoDB          bool
	HistorySize   int
	HistoryRetain int
	Instruction   string
	LogLevel      string
}

func Load() Config {
	historySize := envInt("HISTORY_SIZE", 10)
	return Config{
		Port:          envInt("PERCH_PORT", 8760),
		NatsURL:       envStr("NATS_URL", ""),
		NatsToken:     envStr("NATS_TOKEN", ""),
		BotUsername:   envStr("BOT_USERNAME", ""),
		OpenAIAPIKey:  envStr("OPENAI_API_KEY", ""),
		Model:         envStr("PERCH_MODEL", "gpt-4o-mini"),
		DatabaseURL:   envStr("DATABASE_URL", ""),
		SQLitePath:    envStr("SQLITE_PATH", "messages.db"),
		NoDB:          envBool("NO_DB", false),
		HistorySize:   historySize,
		HistoryRetain: envInt("HISTORY_RETAIN", historySize),
		Instruction:   envStr("PERCH_SYSTEM_PROMPT", ""),
		LogLevel:      envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return fallback
}
