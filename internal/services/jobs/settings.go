package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cozy-creator/sticker-server/internal/db/models"
	"github.com/cozy-creator/sticker-server/internal/utils/randutil"
)

var ErrUnknownSetting = errors.New("unknown setting")

// SettingKeys are the app_config keys users may read and change.
var SettingKeys = []string{
	models.ConfigKeyBasePrompt,
	models.ConfigKeyAPIKey,
	models.ConfigKeyProvider,
	models.ConfigKeyModel,
}

type Settings struct {
	BasePrompt string `json:"base_prompt"`
	APIKey     string `json:"api_key"`
	HasAPIKey  bool   `json:"has_api_key"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
}

// SettingsUpdate changes only the fields that are set.
type SettingsUpdate struct {
	BasePrompt *string `json:"base_prompt"`
	APIKey     *string `json:"api_key"`
	Provider   *string `json:"provider"`
	Model      *string `json:"model"`
}

// SeedSettings stores the defaults for keys that were never set.
func (o *Orchestrator) SeedSettings(ctx context.Context, basePrompt, provider, model string) error {
	seed := map[string]string{
		models.ConfigKeyBasePrompt: basePrompt,
		models.ConfigKeyAPIKey:     o.defaultAPIKey,
		models.ConfigKeyProvider:   provider,
		models.ConfigKeyModel:      model,
	}
	for _, key := range SettingKeys {
		if seed[key] == "" {
			continue
		}
		if err := o.appConfig.SetIfMissing(ctx, key, seed[key]); err != nil {
			return fmt.Errorf("failed to seed %s: %w", key, err)
		}
	}

	return nil
}

// Settings returns the current settings with the credential masked.
func (o *Orchestrator) Settings(ctx context.Context) (*Settings, error) {
	values, err := o.appConfig.GetMany(ctx, SettingKeys...)
	if err != nil {
		return nil, err
	}

	key := values[models.ConfigKeyAPIKey]
	if key == "" {
		key = o.defaultAPIKey
	}

	return &Settings{
		BasePrompt: values[models.ConfigKeyBasePrompt],
		APIKey:     randutil.MaskSecret(key),
		HasAPIKey:  key != "",
		Provider:   values[models.ConfigKeyProvider],
		Model:      values[models.ConfigKeyModel],
	}, nil
}

func (o *Orchestrator) UpdateSettings(ctx context.Context, update SettingsUpdate) (*Settings, error) {
	values := map[string]*string{
		models.ConfigKeyBasePrompt: update.BasePrompt,
		models.ConfigKeyAPIKey:     update.APIKey,
		models.ConfigKeyProvider:   update.Provider,
		models.ConfigKeyModel:      update.Model,
	}
	for _, key := range SettingKeys {
		if values[key] == nil {
			continue
		}
		if err := o.SetSetting(ctx, key, *values[key]); err != nil {
			return nil, err
		}
	}

	return o.Settings(ctx)
}

// GetSetting returns one raw setting value.
func (o *Orchestrator) GetSetting(ctx context.Context, key string) (string, error) {
	if !isSettingKey(key) {
		return "", fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}

	values, err := o.appConfig.GetMany(ctx, key)
	if err != nil {
		return "", err
	}

	return values[key], nil
}

func (o *Orchestrator) SetSetting(ctx context.Context, key, value string) error {
	if !isSettingKey(key) {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	if key == models.ConfigKeyAPIKey {
		value = strings.TrimSpace(value)
	}

	if err := o.appConfig.Set(ctx, key, value); err != nil {
		return fmt.Errorf("failed to update %s: %w", key, err)
	}

	return nil
}

func isSettingKey(key string) bool {
	for _, k := range SettingKeys {
		if k == key {
			return true
		}
	}

	return false
}
