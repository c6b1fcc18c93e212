package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	DBPath     string
	StorageDir string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftRedirectURL  string

	DropboxClientID     string
	DropboxClientSecret string
	DropboxRedirectURL  string
}

var AppConfig *Config

func Load() {
	_ = godotenv.Load()

	AppConfig = &Config{
		Port:       GetEnv("PORT", "3001"),
		Env:        GetEnv("ENV", "development"),
		DBPath:     GetEnv("DB_PATH", "./data/cloudsave.db"),
		StorageDir: GetEnv("STORAGE_DIR", "./storage"),

		GoogleClientID:     GetEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: GetEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  GetEnv("GOOGLE_REDIRECT_URI", ""),

		MicrosoftClientID:     GetEnv("MICROSOFT_CLIENT_ID", ""),
		MicrosoftClientSecret: GetEnv("MICROSOFT_CLIENT_SECRET", ""),
		MicrosoftRedirectURL:  GetEnv("MICROSOFT_REDIRECT_URI", ""),

		DropboxClientID:     GetEnv("DROPBOX_CLIENT_ID", ""),
		DropboxClientSecret: GetEnv("DROPBOX_CLIENT_SECRET", ""),
		DropboxRedirectURL:  GetEnv("DROPBOX_REDIRECT_URI", ""),
	}

	if AppConfig.GoogleClientID == "" &&
		AppConfig.MicrosoftClientID == "" &&
		AppConfig.DropboxClientID == "" {
		log.Fatal("at least one cloud provider must be configured (GOOGLE_CLIENT_ID, MICROSOFT_CLIENT_ID or DROPBOX_CLIENT_ID)")
	}
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
