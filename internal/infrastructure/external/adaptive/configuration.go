package adaptive

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Well-known configuration keys.
const (
	KeyURL         = "url"
	KeyAPIVersion  = "api_version"
	KeyInstanceID  = "instance_id"
	KeyAccessToken = "access_token"
)

var (
	// ErrMissingSetting is returned when a required setting is absent from the configuration.
	ErrMissingSetting = errors.New("adaptive: missing configuration setting")

	// ErrInvalidSetting is returned when a configuration cannot be built from the given settings.
	ErrInvalidSetting = errors.New("adaptive: invalid configuration setting")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION HOLDER
// ══════════════════════════════════════════════════════════════════════════════

// Configuration stores the course-scoped settings needed to talk to the
// adaptive learning service. It is immutable once constructed: every key
// passed to NewConfiguration can be read back, and none can be added or removed.
type Configuration struct {
	settings map[string]any
}

// NewConfiguration copies settings into a new Configuration.
// Keys must be non-empty.
func NewConfiguration(settings map[string]any) (*Configuration, error) {
	copied := make(map[string]any, len(settings))
	for key, value := range settings {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: empty key", ErrInvalidSetting)
		}
		copied[key] = value
	}
	return &Configuration{settings: copied}, nil
}

// MustConfiguration is like NewConfiguration but panics on error.
// Intended for tests and static setups.
func MustConfiguration(settings map[string]any) *Configuration {
	cfg, err := NewConfiguration(settings)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Get returns the value stored under key and whether it was present.
func (c *Configuration) Get(key string) (any, bool) {
	value, ok := c.settings[key]
	return value, ok
}

// Value returns the value stored under key, or ErrMissingSetting.
func (c *Configuration) Value(key string) (any, error) {
	value, ok := c.settings[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingSetting, key)
	}
	return value, nil
}

// Keys returns the configured keys in sorted order.
func (c *Configuration) Keys() []string {
	keys := make([]string, 0, len(c.settings))
	for key := range c.settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Settings returns a copy of the underlying mapping.
func (c *Configuration) Settings() map[string]any {
	copied := make(map[string]any, len(c.settings))
	for key, value := range c.settings {
		copied[key] = value
	}
	return copied
}

// Len returns the number of settings.
func (c *Configuration) Len() int {
	return len(c.settings)
}

// URL returns the base URL of the service.
func (c *Configuration) URL() (string, error) {
	return c.text(KeyURL)
}

// APIVersion returns the API version path segment.
func (c *Configuration) APIVersion() (string, error) {
	return c.text(KeyAPIVersion)
}

// InstanceID returns the tenant identifier rendered as a path segment.
// Integer and string identifiers are both accepted.
func (c *Configuration) InstanceID() (string, error) {
	return c.text(KeyInstanceID)
}

// AccessToken returns the secret used in the Authorization header.
func (c *Configuration) AccessToken() (string, error) {
	return c.text(KeyAccessToken)
}

func (c *Configuration) text(key string) (string, error) {
	value, err := c.Value(key)
	if err != nil {
		return "", err
	}
	return FormatValue(value), nil
}

// String renders the full mapping. The output is for diagnostics only.
func (c *Configuration) String() string {
	return fmt.Sprint(c.settings)
}

// ══════════════════════════════════════════════════════════════════════════════
// MEANINGFULNESS
// ══════════════════════════════════════════════════════════════════════════════

// IsMeaningful reports whether settings describe a usable adaptive learning setup:
// at least one setting, and no empty strings, nil values or negative numbers.
func IsMeaningful(settings map[string]any) bool {
	if len(settings) == 0 {
		return false
	}
	for _, value := range settings {
		if !meaningfulValue(value) {
			return false
		}
	}
	return true
}

// IsMeaningful reports whether this configuration is usable.
func (c *Configuration) IsMeaningful() bool {
	return IsMeaningful(c.settings)
}

func meaningfulValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case int:
		return v >= 0
	case int32:
		return v >= 0
	case int64:
		return v >= 0
	case uint, uint32, uint64:
		return true
	case float32:
		return v >= 0
	case float64:
		return v >= 0
	case json.Number:
		f, err := v.Float64()
		return err == nil && f >= 0
	default:
		return true
	}
}

// FormatValue renders a setting, record field or decoded JSON value as a plain string.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}
