package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIOSSafariGetsRestrictedStrategy(t *testing.T) {
	s := StrategyFor(Capability{Platform: "iOS", Engine: "WebKit", OSMajor: 17})
	assert.Contains(t, s.PreferredMimeType, "mp4")
	assert.True(t, s.RequiresManualBuffering)
	assert.Equal(t, 16*1024, s.MaxChunkBytes)
	assert.Equal(t, 24, s.MaxFrameRate)
}

func TestOldIPadOSMasqueradingAsMacOS(t *testing.T) {
	s := StrategyFor(Capability{Platform: "macos", Engine: "webkit", OSMajor: 13})
	assert.True(t, s.RequiresManualBuffering)

	// Current macOS Safari is not restricted.
	s = StrategyFor(Capability{Platform: "macos", Engine: "webkit", OSMajor: 14})
	assert.False(t, s.RequiresManualBuffering)
}

func TestAndroidPrefersVP8(t *testing.T) {
	s := StrategyFor(Capability{Platform: "android", Engine: "blink"})
	assert.Contains(t, s.PreferredMimeType, "vp8")
	assert.False(t, s.RequiresManualBuffering)
}

func TestDesktopDefault(t *testing.T) {
	s := StrategyFor(Capability{Platform: "windows", Engine: "blink"})
	assert.Contains(t, s.PreferredMimeType, "vp9")
	assert.Equal(t, 64*1024, s.MaxChunkBytes)
	assert.Equal(t, 30, s.MaxFrameRate)
}

func TestUnknownCapabilityFallsThrough(t *testing.T) {
	s := StrategyFor(Capability{})
	assert.NotZero(t, s.MaxChunkBytes)
	assert.NotZero(t, s.MaxFrameRate)
}
