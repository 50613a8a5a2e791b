// internal/browser/default_allocator_options_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/browsergate/internal/config"
)

// flagValue returns the value of the last flag named name, mirroring how
// Chrome resolves duplicates.
func flagValue(flags []allocatorFlag, name string) (interface{}, bool) {
	var (
		value interface{}
		found bool
	)
	for _, f := range flags {
		if f.Name == name {
			value, found = f.Value, true
		}
	}
	return value, found
}

func TestAllocatorFlags(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: true})
		v, ok := flagValue(flags, "headless")
		assert.True(t, ok)
		assert.Equal(t, true, v)
		_, ok = flagValue(flags, "no-sandbox")
		assert.True(t, ok, "base flags are always present")
	})

	t.Run("HeadlessDisabled", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: false})
		_, ok := flagValue(flags, "headless")
		assert.False(t, ok)
	})

	t.Run("CacheDisabled", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{DisableCache: true})
		for _, name := range []string{"disable-cache", "disk-cache-size", "media-cache-size"} {
			_, ok := flagValue(flags, name)
			assert.True(t, ok, name)
		}
		v, _ := flagValue(flags, "disk-cache-size")
		assert.Equal(t, "0", v)
	})

	t.Run("IgnoreTLSErrors", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{IgnoreTLSErrors: true})
		_, ok := flagValue(flags, "ignore-certificate-errors")
		assert.True(t, ok)
		_, ok = flagValue(flags, "allow-insecure-localhost")
		assert.True(t, ok)
	})

	t.Run("WithCustomArgs", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{
			Args: []string{"--custom-arg1", "--lang=de-DE", "--", "--no-sandbox=false"},
		})
		v, ok := flagValue(flags, "custom-arg1")
		assert.True(t, ok)
		assert.Equal(t, true, v)
		v, _ = flagValue(flags, "lang")
		assert.Equal(t, "de-DE", v)
		v, _ = flagValue(flags, "no-sandbox")
		assert.Equal(t, "false", v, "custom args override base flags")
		_, ok = flagValue(flags, "")
		assert.False(t, ok, "empty flag names are skipped")
	})

	t.Run("WithViewport", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Viewport: map[string]int{"width": 1920, "height": 1080}})
		v, ok := flagValue(flags, "window-size")
		assert.True(t, ok)
		assert.Equal(t, "1920,1080", v)

		flags = allocatorFlags(config.BrowserConfig{Viewport: map[string]int{"width": 1920}})
		_, ok = flagValue(flags, "window-size")
		assert.False(t, ok, "partial viewport is ignored")
	})

	t.Run("WithUserAgent", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{UserAgent: "browsergate/test"})
		v, _ := flagValue(flags, "user-agent")
		assert.Equal(t, "browsergate/test", v)
	})
}

func TestDefaultAllocatorOptions(t *testing.T) {
	cfg := config.BrowserConfig{Headless: true, DisableCache: true}
	opts := DefaultAllocatorOptions(cfg)
	assert.Len(t, opts, len(allocatorFlags(cfg)))

	cfg.ExecPath = "/usr/bin/chromium"
	assert.Len(t, DefaultAllocatorOptions(cfg), len(allocatorFlags(cfg))+1)
}
