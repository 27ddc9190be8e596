package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
)

func TestProfileTableIsTheDocumentedContract(t *testing.T) {
	cases := []struct {
		tier   domain.QualityTier
		fps    int
		width  int
		height int
	}{
		{domain.TierLow, 15, 854, 480},
		{domain.TierMedium, 24, 1280, 720},
		{domain.TierHigh, 30, 1920, 1080},
	}
	for _, tc := range cases {
		t.Run(string(tc.tier), func(t *testing.T) {
			p := ProfileFor(tc.tier)
			assert.Equal(t, tc.fps, p.TargetFPS)
			assert.Equal(t, tc.width, p.MaxWidth)
			assert.Equal(t, tc.height, p.MaxHeight)
		})
	}
}

func TestUnknownTierFallsBackToMedium(t *testing.T) {
	p := ProfileFor(domain.QualityTier("ultra"))
	assert.Equal(t, domain.TierMedium, p.Tier)
}
