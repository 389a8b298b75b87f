package validation

import (
	"github.com/hszk-dev/beatvault/internal/domain/model"
)

// Profiles resolves an upload profile to its validator.
type Profiles struct {
	byName   map[model.Profile]*Validator
	fallback *Validator
}

// NewProfiles builds a registry from the given policies. The general policy
// is used for unknown profiles; if none of the policies is named general,
// GeneralPolicy() is registered.
func NewProfiles(policies ...Policy) *Profiles {
	p := &Profiles{byName: make(map[model.Profile]*Validator, len(policies)+1)}
	for _, policy := range policies {
		p.byName[policy.Name] = NewValidator(policy)
	}
	if _, ok := p.byName[model.ProfileGeneral]; !ok {
		p.byName[model.ProfileGeneral] = NewValidator(GeneralPolicy())
	}
	p.fallback = p.byName[model.ProfileGeneral]
	return p
}

// DefaultProfiles returns the general and studio policies with default limits.
func DefaultProfiles() *Profiles {
	return NewProfiles(GeneralPolicy(), StudioPolicy())
}

// For returns the validator for profile.
func (p *Profiles) For(profile model.Profile) *Validator {
	if v, ok := p.byName[profile]; ok {
		return v
	}
	return p.fallback
}

// Validate checks an upload against the policy of its profile.
func (p *Profiles) Validate(profile model.Profile, contentType string, byteSize int64) error {
	return p.For(profile).Validate(contentType, byteSize)
}

// ProfilesWithLimits builds the general and studio profiles with the given
// size limits. A non-empty allowed list replaces DefaultAllowedTypes in both.
func ProfilesWithLimits(generalMax, studioMax int64, allowed []string) *Profiles {
	general, studio := GeneralPolicy(), StudioPolicy()
	general.MaxBytes, studio.MaxBytes = generalMax, studioMax
	if len(allowed) > 0 {
		general.AllowedTypes, studio.AllowedTypes = allowed, allowed
	}
	return NewProfiles(general, studio)
}
