package services

import "github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"

// QualityProfile maps a user-selected tier to the capture targets. The
// numbers are a user-facing contract shared with the quality selector and
// must not change silently. A profile is fixed for the lifetime of a
// session; switching tiers means stopping and restarting the share.
type QualityProfile struct {
	Tier      domain.QualityTier
	TargetFPS int
	MaxWidth  int
	MaxHeight int
}

var qualityProfiles = map[domain.QualityTier]QualityProfile{
	domain.TierLow:    {Tier: domain.TierLow, TargetFPS: 15, MaxWidth: 854, MaxHeight: 480},
	domain.TierMedium: {Tier: domain.TierMedium, TargetFPS: 24, MaxWidth: 1280, MaxHeight: 720},
	domain.TierHigh:   {Tier: domain.TierHigh, TargetFPS: 30, MaxWidth: 1920, MaxHeight: 1080},
}

// ProfileFor resolves a tier, falling back to medium for unknown values.
func ProfileFor(tier domain.QualityTier) QualityProfile {
	if p, ok := qualityProfiles[tier]; ok {
		return p
	}
	return qualityProfiles[domain.TierMedium]
}
