package models

import "time"

// Config 構造体はサーバー全体の設定情報を保持します。
type Config struct {
	ServerAddr string `mapstructure:"server_addr"`
	LogLevel   string `mapstructure:"log_level"`

	// "postgres" または "memory"
	Store      string `mapstructure:"store"`
	DBHost     string `mapstructure:"db_host"`
	DBPort     int    `mapstructure:"db_port"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	DBName     string `mapstructure:"db_name"`
	DBSSLMode  string `mapstructure:"db_sslmode"`

	RedisEnabled  bool   `mapstructure:"redis_enabled"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`

	PurgeSchedule string        `mapstructure:"purge_schedule"`
	PurgeMaxAge   time.Duration `mapstructure:"purge_max_age"`

	ChatRate  float64 `mapstructure:"chat_rate"`
	ChatBurst int     `mapstructure:"chat_burst"`
}
