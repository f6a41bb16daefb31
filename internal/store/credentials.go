package store

import (
	"github.com/pulseboard/pulseboard/internal/errors"
	"github.com/pulseboard/pulseboard/internal/models"
)

// CredentialStore maps platform credentials onto persisted settings keys.
type CredentialStore struct {
	settings SettingsStore
}

// NewCredentialStore wraps a settings store.
func NewCredentialStore(settings SettingsStore) *CredentialStore {
	return &CredentialStore{settings: settings}
}

// Load returns the stored credentials for a platform. Missing keys load as
// empty strings; use Present to check completeness.
func (c *CredentialStore) Load(platform models.PlatformID) models.PlatformCredentials {
	creds := models.PlatformCredentials{Platform: platform}
	switch platform {
	case models.PlatformYouTube:
		creds.APIKey, _ = c.settings.Get(SettingYouTubeAPIKey)
		creds.ChannelID, _ = c.settings.Get(SettingYouTubeChannelID)
	case models.PlatformTikTok:
		creds.AccessToken, _ = c.settings.Get(SettingTikTokAccessToken)
		creds.OpenID, _ = c.settings.Get(SettingTikTokOpenID)
		creds.RefreshToken, _ = c.settings.Get(SettingTikTokRefreshToken)
	}
	return creds
}

// LoadAll loads credentials for every supported platform.
func (c *CredentialStore) LoadAll() map[models.PlatformID]models.PlatformCredentials {
	out := make(map[models.PlatformID]models.PlatformCredentials, len(models.AllPlatforms))
	for _, p := range models.AllPlatforms {
		out[p] = c.Load(p)
	}
	return out
}

// Save persists the non-empty fields of creds. Empty fields leave the stored
// value untouched so a partial form submit does not wipe a saved token.
func (c *CredentialStore) Save(creds models.PlatformCredentials) error {
	var pairs [][2]string
	switch creds.Platform {
	case models.PlatformYouTube:
		pairs = [][2]string{
			{SettingYouTubeAPIKey, creds.APIKey},
			{SettingYouTubeChannelID, creds.ChannelID},
		}
	case models.PlatformTikTok:
		pairs = [][2]string{
			{SettingTikTokAccessToken, creds.AccessToken},
			{SettingTikTokOpenID, creds.OpenID},
			{SettingTikTokRefreshToken, creds.RefreshToken},
		}
	default:
		return &errors.ErrValidation{Reason: "unknown platform " + string(creds.Platform)}
	}

	for _, kv := range pairs {
		if kv[1] == "" {
			continue
		}
		if err := c.settings.Set(kv[0], kv[1]); err != nil {
			return &errors.ErrDatabaseQuery{Operation: "save " + kv[0], Err: err}
		}
	}
	return nil
}

// Replace discards the stored credentials of creds.Platform and saves creds in
// their place. Fields left empty in creds end up unset.
func (c *CredentialStore) Replace(creds models.PlatformCredentials) error {
	if err := c.Clear(creds.Platform); err != nil {
		return err
	}
	return c.Save(creds)
}

// Clear removes every stored credential of a platform.
func (c *CredentialStore) Clear(platform models.PlatformID) error {
	var keys []string
	switch platform {
	case models.PlatformYouTube:
		keys = []string{SettingYouTubeAPIKey, SettingYouTubeChannelID}
	case models.PlatformTikTok:
		keys = []string{SettingTikTokAccessToken, SettingTikTokOpenID, SettingTikTokRefreshToken}
	}
	for _, k := range keys {
		if err := c.settings.Delete(k); err != nil {
			return &errors.ErrDatabaseQuery{Operation: "delete " + k, Err: err}
		}
	}
	return nil
}
