package services

import "strings"

// Capability describes the sharing participant's device and browser. It is
// reported by the UI at session start.
type Capability struct {
	Platform string // "ios", "android", "macos", "windows", "linux"
	Engine   string // "webkit", "blink", "gecko"
	OSMajor  int
}

// DeviceStrategy is the encoding policy resolved from a capability. Device
// quirks live in the rule table below as data, so a new quirk is one added
// row rather than another scattered conditional.
type DeviceStrategy struct {
	PreferredMimeType       string
	MaxChunkBytes           int
	MaxFrameRate            int
	RequiresManualBuffering bool
}

type strategyRule struct {
	platform string // empty matches any
	engine   string // empty matches any
	maxOS    int    // 0 matches any; otherwise OSMajor <= maxOS
	strategy DeviceStrategy
}

// Ordered: first match wins, most specific rules first.
var strategyRules = []strategyRule{
	{
		// iOS Safari refuses background canvas capture and webm containers.
		// Small chunks with manual buffering keep the receiver's source
		// buffer from stalling.
		platform: "ios",
		engine:   "webkit",
		strategy: DeviceStrategy{
			PreferredMimeType:       `video/mp4;codecs="avc1.42E01E"`,
			MaxChunkBytes:           16 * 1024,
			MaxFrameRate:            24,
			RequiresManualBuffering: true,
		},
	},
	{
		// Older iPadOS identifies as macOS WebKit but has the same capture
		// restrictions.
		platform: "macos",
		engine:   "webkit",
		maxOS:    13,
		strategy: DeviceStrategy{
			PreferredMimeType:       `video/mp4;codecs="avc1.42E01E"`,
			MaxChunkBytes:           16 * 1024,
			MaxFrameRate:            24,
			RequiresManualBuffering: true,
		},
	},
	{
		platform: "android",
		strategy: DeviceStrategy{
			PreferredMimeType: `video/webm;codecs="vp8,opus"`,
			MaxChunkBytes:     32 * 1024,
			MaxFrameRate:      30,
		},
	},
	{
		engine: "gecko",
		strategy: DeviceStrategy{
			PreferredMimeType: `video/webm;codecs="vp8,opus"`,
			MaxChunkBytes:     64 * 1024,
			MaxFrameRate:      30,
		},
	},
	{
		// Desktop default.
		strategy: DeviceStrategy{
			PreferredMimeType: `video/webm;codecs="vp9,opus"`,
			MaxChunkBytes:     64 * 1024,
			MaxFrameRate:      30,
		},
	},
}

// StrategyFor resolves the encoding policy for a capability. Pure lookup, no
// side effects.
func StrategyFor(cap Capability) DeviceStrategy {
	platform := strings.ToLower(cap.Platform)
	engine := strings.ToLower(cap.Engine)
	for _, r := range strategyRules {
		if r.platform != "" && r.platform != platform {
			continue
		}
		if r.engine != "" && r.engine != engine {
			continue
		}
		if r.maxOS != 0 && (cap.OSMajor == 0 || cap.OSMajor > r.maxOS) {
			continue
		}
		return r.strategy
	}
	return strategyRules[len(strategyRules)-1].strategy
}
