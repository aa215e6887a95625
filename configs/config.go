package config

import "os"

type Storage struct {
	AccountID     string
	AccessKey     string
	SecretKey     string
	BucketName    string
	Endpoint      string
	PublicBaseURL string
}

type Config struct {
	FacebookClientID     string
	FacebookClientSecret string
	TiktokClientKey      string
	TiktokClientSecret   string
	GoogleClientID       string
	GoogleClientSecret   string
	LinkedinClientID     string
	LinkedinClientSecret string
	PostgresURI          string
	RedisURI             string
	FrontendURL          string
	Storage              Storage
	SecretKey            string
	CookieName           string
}

func LoadConfig() *Config {
	return &Config{
		FacebookClientID:     getEnv("FACEBOOK_CLIENT_ID", ""),
		FacebookClientSecret: getEnv("FACEBOOK_CLIENT_SECRET", ""),
		TiktokClientKey:      getEnv("TIKTOK_CLIENT_KEY", ""),
		TiktokClientSecret:   getEnv("TIKTOK_CLIENT_SECRET", ""),
		GoogleClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
		LinkedinClientID:     getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedinClientSecret: getEnv("LINKEDIN_CLIENT_SECRET", ""),
		PostgresURI:          getEnv("POSTGRES_URI", ""),
		RedisURI:             getEnv("REDIS_URI", ""),
		FrontendURL:          getEnv("FRONTEND_URL", "http://localhost:5173"),
		Storage: Storage{
			AccountID:     getEnv("S3_ACCOUNT_ID", ""),
			AccessKey:     getEnv("S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("S3_SECRET_KEY", ""),
			BucketName:    getEnv("S3_BUCKET_NAME", ""),
			Endpoint:      getEnv("S3_ENDPOINT", ""),
			PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "clippost_session"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
