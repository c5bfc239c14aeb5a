package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/puyokura/foodfortalk/auth"
	"github.com/puyokura/foodfortalk/chat"
)

type Config struct {
	Host           string   `json:"host"`
	Port           string   `json:"port"`
	ChatPath       string   `json:"chat_path"`
	JWTSecret      string   `json:"jwt_secret"`
	JWTIssuer      string   `json:"jwt_issuer"`
	TokenTTL       string   `json:"token_ttl"`
	DBPath         string   `json:"db_path"`
	HistoryLimit   int      `json:"history_limit"`
	PersistTimeout string   `json:"persist_timeout"`
	RedisAddr      string   `json:"redis_addr"` // empty keeps announcements in memory
	WelcomeMessage string   `json:"welcome_message"`
	AllowedOrigins []string `json:"allowed_origins"`
	BannedUserIDs  []uint   `json:"banned_user_ids"`
	LogLevel       string   `json:"log_level"`
	ServerName     string   `json:"server_name"`
	mu             sync.RWMutex
	configFile     string
	// fileValues holds what the file said for fields replaced from the environment.
	fileValues map[*string]string
}

func NewConfig(filename string) *Config {
	if filename == "" {
		filename = "serverconfig.json"
	}
	return &Config{
		configFile: filename,
		// Defaults
		Host:           "localhost",
		Port:           "8999",
		ChatPath:       "/food-for-talk-chat",
		JWTIssuer:      "food-for-talk",
		TokenTTL:       "12h",
		DBPath:         "foodfortalk.db",
		HistoryLimit:   chat.DefaultHistoryLimit,
		PersistTimeout: chat.DefaultPersistTimeout.String(),
		WelcomeMessage: chat.DefaultWelcome,
		AllowedOrigins: []string{},
		BannedUserIDs:  []uint{},
		LogLevel:       "info",
		ServerName:     "Food for Talk",
	}
}

// Load reads the config file, writes back any missing defaults and then applies
// environment overrides. Overrides are never written to the file.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.configFile); os.IsNotExist(err) {
		c.JWTSecret = uuid.NewString()
		if err := c.saveInternal(); err != nil {
			return err
		}
		c.applyEnv()
		return nil
	}

	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", c.configFile, err)
	}
	if c.JWTSecret == "" {
		c.JWTSecret = uuid.NewString()
	}

	if err := c.saveInternal(); err != nil {
		return err
	}
	c.applyEnv()
	return nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"FFT_JWT_SECRET": &c.JWTSecret,
		"FFT_REDIS_ADDR": &c.RedisAddr,
		"FFT_DB_PATH":    &c.DBPath,
		"PORT":           &c.Port,
		"LOG_LEVEL":      &c.LogLevel,
	}
	c.fileValues = make(map[*string]string)
	for key, field := range overrides {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			c.fileValues[field] = *field
			*field = value
		}
	}
}

func (c *Config) saveInternal() error {
	for field, fileValue := range c.fileValues {
		envValue := *field
		*field = fileValue
		defer func() { *field = envValue }()
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.configFile, data, 0600)
}

func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func (c *Config) ChatConfig() chat.Config {
	return chat.Config{
		HistoryLimit:   c.HistoryLimit,
		PersistTimeout: parseDuration(c.PersistTimeout, chat.DefaultPersistTimeout),
		WelcomeMessage: c.WelcomeMessage,
		AllowedOrigins: c.AllowedOrigins,
	}
}

func (c *Config) AuthConfig() auth.Config {
	return auth.Config{
		Secret: c.JWTSecret,
		Issuer: c.JWTIssuer,
		TTL:    parseDuration(c.TokenTTL, 12*time.Hour),
	}
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (c *Config) IsBanned(userID uint) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, banned := range c.BannedUserIDs {
		if banned == userID {
			return true
		}
	}
	return false
}

func (c *Config) Ban(userID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, banned := range c.BannedUserIDs {
		if banned == userID {
			return nil
		}
	}
	c.BannedUserIDs = append(c.BannedUserIDs, userID)
	return c.saveInternal()
}

func (c *Config) Unban(userID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	newBanned := []uint{}
	for _, banned := range c.BannedUserIDs {
		if banned != userID {
			newBanned = append(newBanned, banned)
		}
	}
	c.BannedUserIDs = newBanned
	return c.saveInternal()
}
