package engine

import (
	"neurogut/internal/config"
	"neurogut/internal/normalize"
)

const (
	reasonBlocked    = "blocked"
	reasonNotAllowed = "not_allowlisted"
	reasonMissingID  = "missing_device_id"
)

// DeviceAccess decides which devices may submit recordings.
type DeviceAccess struct {
	Enabled       bool
	AllowlistOnly bool
	allow         map[string]struct{}
	block         map[string]struct{}
}

func buildDeviceAccess(cfg *config.Config) *DeviceAccess {
	da := &DeviceAccess{Enabled: cfg.Devices.Enabled, AllowlistOnly: cfg.Devices.AllowlistOnly}
	if !da.Enabled {
		return da
	}
	da.allow = buildDeviceSet(cfg.Devices.Allowlist)
	da.block = buildDeviceSet(cfg.Devices.Blocklist)
	return da
}

func buildDeviceSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if id := normalize.DeviceKey(v); id != "" {
			set[id] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// Permit reports whether deviceID may submit, and if not, why.
func (a *DeviceAccess) Permit(deviceID string) (bool, string) {
	if a == nil || !a.Enabled {
		return true, ""
	}
	id := normalize.DeviceKey(deviceID)
	if id == "" {
		return false, reasonMissingID
	}
	if _, ok := a.block[id]; ok {
		return false, reasonBlocked
	}
	if a.AllowlistOnly {
		if _, ok := a.allow[id]; !ok {
			return false, reasonNotAllowed
		}
	}
	return true, ""
}
