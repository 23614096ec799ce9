package filestore

import "time"

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to reach a storage backend and place
// exported snapshots in it.
type Config struct {
	Provider Provider `mapstructure:"provider"`

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string `mapstructure:"endpoint"`

	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `mapstructure:"use_ssl"`

	// Region is used by region-aware backends. Leave empty for MinIO.
	Region string `mapstructure:"region"`

	// Bucket receives the snapshots; it is created on first export.
	Bucket string `mapstructure:"bucket"`

	// Prefix is prepended to every object key, e.g. "nightly/".
	Prefix string `mapstructure:"prefix"`

	// PresignTTL, when positive, makes exports return a download URL valid
	// for that long.
	PresignTTL time.Duration `mapstructure:"presign_ttl"`
}

// DefaultConfig returns a local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    false,
		Bucket:    "arcforge-exports",
	}
}
