package config

import (
	"fmt"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// Internal-parameter keys used by the core. Kept as named constants matching
// trident_api::constants::internal_params, so call sites read as intent
// rather than magic strings.
const (
	ParamReencryptOnCleanInstall   = "reencryptOnCleanInstall"
	ParamNoCloseEncryptedVolumes   = "noCloseEncryptedVolumes"
	ParamClearTPMOnInstall         = "clearTpmOnInstall"
	ParamHTTPConnectionTimeoutSecs = "httpConnectionTimeoutSeconds"
	ParamOrchestratorTimeoutSecs   = "orchestratorConnectionTimeoutSeconds"
	ParamWaitForSystemdNetworkd    = "waitForSystemdNetworkd"
	ParamRootVerityCanSelfUpgrade  = "rootVerityCanSelfUpgrade"
	ParamMinimumRollbackVersion    = "minimumRollbackTridentVersion"

	DefaultHTTPConnectionTimeoutSeconds = 10
)

// InternalParams is a flat map of typed string->value overrides, consulted
// via GetFlag/GetU64/GetU16/GetString the way InternalParams::get_flag/
// get_u64/get_u16 are used to toggle experimental behaviors without
// extending the schema.
type InternalParams map[string]any

// GetFlag returns the boolean value of key, or false if absent or not a
// bool-like value.
func (p InternalParams) GetFlag(key string) bool {
	v, ok := p[key]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(t)
		return err == nil && b
	default:
		return false
	}
}

// GetU64 returns the uint64 value of key and whether it was present and
// decodable.
func (p InternalParams) GetU64(key string) (uint64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	var out uint64
	if err := mapstructure.WeakDecode(v, &out); err != nil {
		return 0, false
	}
	return out, true
}

// GetU64Default returns GetU64's value, or def if absent.
func (p InternalParams) GetU64Default(key string, def uint64) uint64 {
	if v, ok := p.GetU64(key); ok {
		return v
	}
	return def
}

// GetU16 returns the uint16 value of key and whether it was present and
// decodable.
func (p InternalParams) GetU16(key string) (uint16, bool) {
	v, ok := p.GetU64(key)
	if !ok || v > 0xFFFF {
		return 0, false
	}
	return uint16(v), true
}

// GetString returns the string value of key and whether it was present.
func (p InternalParams) GetString(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Decode decodes the whole parameter map into a typed struct using
// mapstructure, for call sites that want a typed view of several related
// parameters at once.
func (p InternalParams) Decode(out any) error {
	if err := mapstructure.Decode(map[string]any(p), out); err != nil {
		return fmt.Errorf("failed to decode internal parameters: %w", err)
	}
	return nil
}
