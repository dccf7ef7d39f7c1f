package adaptive

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfiguration_ReadsBackEverySetting(t *testing.T) {
	settings := map[string]any{
		"foo": nil,
		"bar": 42,
		"baz": "Hello World",
	}

	cfg, err := NewConfiguration(settings)
	require.NoError(t, err)

	for key, want := range settings {
		got, ok := cfg.Get(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	assert.Equal(t, []string{"bar", "baz", "foo"}, cfg.Keys())
	assert.Equal(t, 3, cfg.Len())
	assert.Equal(t, fmt.Sprint(settings), cfg.String())

	_, ok := cfg.Get("qux")
	assert.False(t, ok)
	_, err = cfg.Value("qux")
	assert.ErrorIs(t, err, ErrMissingSetting)
}

func TestConfiguration_IsolatedFromCaller(t *testing.T) {
	settings := map[string]any{KeyURL: "https://dummy.com"}
	cfg := MustConfiguration(settings)

	settings[KeyURL] = "https://changed.example"
	settings["extra"] = true

	got, err := cfg.URL()
	require.NoError(t, err)
	assert.Equal(t, "https://dummy.com", got)
	assert.Equal(t, 1, cfg.Len())

	copied := cfg.Settings()
	copied[KeyURL] = "https://mutated.example"
	got, _ = cfg.URL()
	assert.Equal(t, "https://dummy.com", got)
}

func TestConfiguration_RejectsEmptyKey(t *testing.T) {
	_, err := NewConfiguration(map[string]any{" ": "x"})
	assert.ErrorIs(t, err, ErrInvalidSetting)

	assert.Panics(t, func() { MustConfiguration(map[string]any{"": 1}) })
}

func TestConfiguration_TypedGetters(t *testing.T) {
	cfg := MustConfiguration(map[string]any{
		KeyURL:         "https://dummy.com",
		KeyAPIVersion:  "v42",
		KeyInstanceID:  json.Number("23"),
		KeyAccessToken: "secret",
	})

	instanceID, err := cfg.InstanceID()
	require.NoError(t, err)
	assert.Equal(t, "23", instanceID)

	token, err := cfg.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "secret", token)

	_, err = MustConfiguration(nil).APIVersion()
	assert.ErrorIs(t, err, ErrMissingSetting)
}

func TestIsMeaningful(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		want     bool
	}{
		{"nil", nil, false},
		{"empty", map[string]any{}, false},
		{"complete", map[string]any{"url": "https://dummy.com", "instance_id": 1}, true},
		{"zero id", map[string]any{"instance_id": 0}, true},
		{"empty string", map[string]any{"url": "", "instance_id": 1}, false},
		{"blank string", map[string]any{"url": "   "}, false},
		{"nil value", map[string]any{"url": nil}, false},
		{"negative int", map[string]any{"instance_id": -1}, false},
		{"negative float", map[string]any{"instance_id": -1.5}, false},
		{"negative json number", map[string]any{"instance_id": json.Number("-3")}, false},
		{"bool", map[string]any{"enabled": true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMeaningful(tt.settings))
		})
	}

	assert.True(t, MustConfiguration(map[string]any{"url": "x"}).IsMeaningful())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "23", FormatValue(23))
	assert.Equal(t, "23", FormatValue(float64(23)))
	assert.Equal(t, "2.5", FormatValue(2.5))
	assert.Equal(t, "7", FormatValue(json.Number("7")))
	assert.Equal(t, "true", FormatValue(true))
}
