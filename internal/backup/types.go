// Package backup takes periodic snapshots of the template database and
// optionally uploads them to S3.
package backup

import (
	"context"
	"time"
)

// Config controls periodic DuckDB backups.
type Config struct {
	Enabled   bool          `mapstructure:"backup-enabled"`
	Interval  time.Duration `mapstructure:"backup-interval"`
	LocalDir  string        `mapstructure:"backup-local-dir"`
	KeepLast  int           `mapstructure:"backup-keep-last"`
	BucketURL string        `mapstructure:"backup-bucket-url"`

	S3Endpoint     string `mapstructure:"backup-s3-endpoint"`
	S3Region       string `mapstructure:"backup-s3-region"`
	S3AccessKey    string `mapstructure:"backup-s3-access-key"`
	S3SecretKey    string `mapstructure:"backup-s3-secret-key"`
	S3SessionToken string `mapstructure:"backup-s3-session-token"`
	S3UseSSL       bool   `mapstructure:"backup-s3-use-ssl"`
}

// Snapshotter is the database snapshot contract used by Manager.
type Snapshotter interface {
	DBPath() string
	SnapshotTo(ctx context.Context, dstPath string) error
}

// Uploader uploads one backup artifact.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) error
}
