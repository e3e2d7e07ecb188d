package config

import (
	"encoding/json"
	"os"

	"github.com/amirhossein-khalili/FIM/internal/flagx"
	"github.com/amirhossein-khalili/FIM/internal/timex"
)

// JsonConfig mirrors Config for JSON unmarshalling. Interval fields use
// timex.Duration, which accepts both "30s" strings and integer nanoseconds.
// After unmarshalling, values are copied into the runtime Config.
type JsonConfig struct {
	DatabaseDSN string `json:"database_dsn"`
	SecretKey   string `json:"secret_key"`

	SpoolDir string `json:"spool_dir"`
	AuditDir string `json:"audit_dir"`

	WorkerCount       int            `json:"worker_count"`
	QueuePollInterval timex.Duration `json:"queue_poll_interval"`
	RetryBackoffBase  timex.Duration `json:"retry_backoff_base"`
	MaxJobAttempts    int            `json:"max_job_attempts"`

	SweepInterval timex.Duration `json:"sweep_interval"`
	SweepAge      timex.Duration `json:"sweep_age"`

	StorageOpTimeout timex.Duration `json:"storage_op_timeout"`
	SignedURLTTL     timex.Duration `json:"signed_url_ttl"`

	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into the provided Config. If neither flag is set, nothing
// is loaded. An unreadable or invalid file panics: a half-applied config is
// worse than no process.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.SpoolDir = c.SpoolDir
	config.AuditDir = c.AuditDir
	config.WorkerCount = c.WorkerCount
	config.QueuePollInterval = c.QueuePollInterval.Duration
	config.RetryBackoffBase = c.RetryBackoffBase.Duration
	config.MaxJobAttempts = c.MaxJobAttempts
	config.SweepInterval = c.SweepInterval.Duration
	config.SweepAge = c.SweepAge.Duration
	config.StorageOpTimeout = c.StorageOpTimeout.Duration
	config.SignedURLTTL = c.SignedURLTTL.Duration
	config.S3AccessKey = c.S3AccessKey
	config.S3SecretKey = c.S3SecretKey
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
