// Package device provides the stable per-install device identity and the
// device class reported alongside every synced position. The identity is a
// random UUID generated once and persisted in the local store; it survives
// restarts for the life of the install and changes only when the store is
// wiped.
package device

import (
	"log"
	"strings"

	"github.com/google/uuid"

	"podplayer/internal/db"
	"podplayer/internal/models"
)

const idKey = "device_id"

// ID returns the persisted device identifier, generating and storing a new
// one on first call. If the store is unusable the id is still returned so
// playback can proceed; it just won't be stable across restarts.
func ID() string {
	id, err := db.GetSetting(idKey)
	if err == nil && id != "" {
		return id
	}

	id = uuid.NewString()
	if err := db.SetSetting(idKey, id); err != nil {
		log.Printf("Warning: device id not persisted, using ephemeral id: %v", err)
	}
	return id
}

// Type classifies a user-agent string as mobile, tablet or desktop.
// Pure and deterministic: the same input always yields the same class.
// Tablets are checked first because tablet user agents routinely also
// contain "Mobile".
func Type(userAgent string) models.DeviceType {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet") ||
		(strings.Contains(ua, "android") && !strings.Contains(ua, "mobile")):
		return models.DeviceTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return models.DeviceMobile
	default:
		return models.DeviceDesktop
	}
}
