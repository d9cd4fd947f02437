package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ConfigKeyBasePrompt = "base_prompt"
	ConfigKeyAPIKey     = "api_key"
	ConfigKeyProvider   = "provider"
	ConfigKeyModel      = "model"

	ConfigKeyAggregatePath        = "all_jobs_zip_path"
	ConfigKeyAggregateSHA256      = "all_jobs_zip_sha256"
	ConfigKeyAggregateSizeBytes   = "all_jobs_zip_size_bytes"
	ConfigKeyAggregateFingerprint = "all_jobs_zip_fingerprint"
	ConfigKeyAggregateBuiltAt     = "all_jobs_zip_built_at"
)

var AggregateConfigKeys = []string{
	ConfigKeyAggregatePath,
	ConfigKeyAggregateSHA256,
	ConfigKeyAggregateSizeBytes,
	ConfigKeyAggregateFingerprint,
	ConfigKeyAggregateBuiltAt,
}

type AppConfig struct {
	bun.BaseModel `bun:"table:app_config"`

	Key       string    `bun:",pk" json:"key"`
	Value     string    `bun:",notnull,default:''" json:"value"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
}
