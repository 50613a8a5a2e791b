// internal/browser/allocator.go
package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/browsergate/internal/config"
)

// allocatorFlag is one Chrome command line flag. Value is a bool or a string.
type allocatorFlag struct {
	Name  string
	Value interface{}
}

// baseFlags are applied to every launched browser. They keep Chrome stable in
// containers and quiet on first start.
var baseFlags = []allocatorFlag{
	{"no-sandbox", true},
	{"disable-gpu", true},
	{"disable-dev-shm-usage", true},
	{"no-first-run", true},
	{"no-default-browser-check", true},
	{"enable-automation", true},
	{"disable-background-networking", true},
	{"disable-popup-blocking", true},
}

// allocatorFlags derives the full flag list from the browser configuration.
// Later entries win when Chrome sees a flag twice, so custom args come last.
func allocatorFlags(cfg config.BrowserConfig) []allocatorFlag {
	flags := append([]allocatorFlag(nil), baseFlags...)

	if cfg.Headless {
		flags = append(flags, allocatorFlag{"headless", true}, allocatorFlag{"hide-scrollbars", true}, allocatorFlag{"mute-audio", true})
	}

	if cfg.DisableCache {
		flags = append(flags,
			allocatorFlag{"disable-cache", true},
			allocatorFlag{"disk-cache-size", "0"},
			allocatorFlag{"media-cache-size", "0"},
		)
	}

	if cfg.IgnoreTLSErrors {
		flags = append(flags,
			allocatorFlag{"ignore-certificate-errors", true},
			allocatorFlag{"allow-insecure-localhost", true},
		)
	}

	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		flags = append(flags, allocatorFlag{"window-size", fmt.Sprintf("%d,%d", w, h)})
	}

	if cfg.UserAgent != "" {
		flags = append(flags, allocatorFlag{"user-agent", cfg.UserAgent})
	}

	for _, arg := range cfg.Args {
		// Accept both "--flag" and "--flag=value".
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			flags = append(flags, allocatorFlag{key, value})
		} else {
			flags = append(flags, allocatorFlag{key, true})
		}
	}
	return flags
}

// DefaultAllocatorOptions builds the exec allocator options for cfg.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	flags := allocatorFlags(cfg)
	opts := make([]chromedp.ExecAllocatorOption, 0, len(flags)+1)
	for _, f := range flags {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
