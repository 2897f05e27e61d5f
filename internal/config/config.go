package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kadirbelkuyu/docsnap/internal/docstore"
)

const (
	DefaultWorkers          = 4
	DefaultBatchSize        = 500
	DefaultConnectTimeout   = 10 * time.Second
	DefaultMaxMessageLength = 2000
	DefaultOutputDir        = "backup"
)

type DatabaseConfig struct {
	Type         string `yaml:"type"`
	Host         string `yaml:"host,omitempty"`
	Port         int    `yaml:"port,omitempty"`
	Database     string `yaml:"database,omitempty"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	URI          string `yaml:"uri,omitempty"`
	AuthDatabase string `yaml:"auth_database,omitempty"`
}

type JobConfig struct {
	Workers        int           `yaml:"workers"`
	BatchSize      int           `yaml:"batch_size"`
	CopyIndexes    bool          `yaml:"copy_indexes"`
	AllowCreate    *bool         `yaml:"allow_create,omitempty"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	OutputDir      string        `yaml:"output_dir"`
}

type DeliveryConfig struct {
	Kind             string `yaml:"kind"`
	Dir              string `yaml:"dir,omitempty"`
	BotToken         string `yaml:"bot_token,omitempty"`
	ChatID           int64  `yaml:"chat_id,omitempty"`
	MaxMessageLength int    `yaml:"max_message_length"`
	Bucket           string `yaml:"bucket,omitempty"`
	Prefix           string `yaml:"prefix,omitempty"`
	Region           string `yaml:"region,omitempty"`
	AccessKey        string `yaml:"access_key,omitempty"`
	SecretKey        string `yaml:"secret_key,omitempty"`
}

type LogConfig struct {
	Verbose    bool   `yaml:"verbose"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

type Config struct {
	Source   DatabaseConfig `yaml:"source"`
	Target   DatabaseConfig `yaml:"target,omitempty"`
	Job      JobConfig      `yaml:"job"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Log      LogConfig      `yaml:"log"`
}

func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills every unset tuning value. It is safe to call repeatedly.
func (c *Config) ApplyDefaults() {
	c.Source.applyDefaults()
	c.Target.applyDefaults()

	if c.Job.Workers <= 0 {
		c.Job.Workers = DefaultWorkers
	}
	if c.Job.BatchSize <= 0 {
		c.Job.BatchSize = DefaultBatchSize
	}
	if c.Job.ConnectTimeout <= 0 {
		c.Job.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Job.OutputDir == "" {
		c.Job.OutputDir = DefaultOutputDir
	}

	c.Delivery.Kind = strings.ToLower(strings.TrimSpace(c.Delivery.Kind))
	if c.Delivery.Kind == "" {
		c.Delivery.Kind = "local"
	}
	if c.Delivery.MaxMessageLength <= 0 {
		c.Delivery.MaxMessageLength = DefaultMaxMessageLength
	}
}

// AllowCreateTarget reports whether clone may create databases on the target implicitly.
func (j JobConfig) AllowCreateTarget() bool {
	return j.AllowCreate == nil || *j.AllowCreate
}

// Validate checks the fields a backup needs. Clone callers also call ValidateTarget.
func (c *Config) Validate() error {
	if !c.Source.IsSet() {
		return fmt.Errorf("source endpoint is not configured")
	}
	if c.Source.Type != "mongo" {
		return fmt.Errorf("unsupported source type: %s", c.Source.Type)
	}

	switch c.Delivery.Kind {
	case "local":
	case "telegram":
		if c.Delivery.BotToken == "" || c.Delivery.ChatID == 0 {
			return fmt.Errorf("telegram delivery requires bot_token and chat_id")
		}
	case "s3":
		if c.Delivery.Bucket == "" {
			return fmt.Errorf("s3 delivery requires bucket")
		}
	default:
		return fmt.Errorf("unsupported delivery kind: %s", c.Delivery.Kind)
	}

	return nil
}

func (c *Config) ValidateTarget() error {
	if !c.Target.IsSet() {
		return fmt.Errorf("target endpoint is not configured")
	}
	if c.Target.Type != "mongo" {
		return fmt.Errorf("unsupported target type: %s", c.Target.Type)
	}
	return nil
}

func (d *DatabaseConfig) applyDefaults() {
	d.Type = normalizeDatabaseType(d.Type)
	if d.Type == "mongo" && d.Port == 0 && d.URI == "" && d.Host != "" {
		d.Port = 27017
	}
}

// IsSet reports whether the endpoint carries enough to open a connection.
func (d DatabaseConfig) IsSet() bool {
	return strings.TrimSpace(d.URI) != "" || strings.TrimSpace(d.Host) != ""
}

func (d DatabaseConfig) MongoURI() string {
	if d.URI != "" {
		return d.URI
	}

	host := d.Host
	if host == "" {
		host = "localhost"
	}
	port := d.Port
	if port == 0 {
		port = 27017
	}

	var credentials string
	if d.Username != "" {
		credentials = url.QueryEscape(d.Username)
		if d.Password != "" {
			credentials = fmt.Sprintf("%s:%s", credentials, url.QueryEscape(d.Password))
		}
		credentials += "@"
	}

	targetDatabase := strings.TrimSpace(d.Database)
	if targetDatabase != "" {
		targetDatabase = "/" + targetDatabase
	}

	uri := fmt.Sprintf("mongodb://%s%s:%d%s", credentials, host, port, targetDatabase)

	if d.AuthDatabase != "" {
		uri = fmt.Sprintf("%s?authSource=%s", uri, url.QueryEscape(d.AuthDatabase))
	}

	return uri
}

// Redacted returns the endpoint address with any password masked.
func (d DatabaseConfig) Redacted() string {
	return docstore.RedactURI(d.MongoURI())
}

func normalizeDatabaseType(dbType string) string {
	dbType = strings.ToLower(strings.TrimSpace(dbType))
	switch dbType {
	case "", "mongo", "mongodb":
		return "mongo"
	default:
		return dbType
	}
}
