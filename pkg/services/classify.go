package services

import (
	"regexp"

	"github.com/ekaya-inc/survey-engine/pkg/models"
)

// providerTypeRules are evaluated in order against a survey's name and vendor type.
// CALL is checked first so "APP Call Pay" lands in the call bucket.
var providerTypeRules = []struct {
	providerType models.ProviderType
	pattern      *regexp.Regexp
}{
	{models.ProviderTypeCall, regexp.MustCompile(`(?i)call[\s_-]*pay|on[\s_-]*call|\bcall\b`)},
	{models.ProviderTypeAPP, regexp.MustCompile(`(?i)advanced[\s_-]*practice|\bapps?\b|nurse[\s_-]*practitioner|physician[\s_-]*assistant`)},
	{models.ProviderTypeCustom, regexp.MustCompile(`(?i)\bcustom\b`)},
}

// ClassifyProviderType returns the effective provider-type bucket of a survey.
// An explicit category wins; otherwise the name and vendor type are matched
// against the rules above, defaulting to PHYSICIAN.
func ClassifyProviderType(survey *models.SurveyRecord) models.ProviderType {
	if survey.ProviderType.IsValid() {
		return survey.ProviderType
	}
	text := survey.Name + " " + survey.Type
	for _, rule := range providerTypeRules {
		if rule.pattern.MatchString(text) {
			return rule.providerType
		}
	}
	return models.ProviderTypePhysician
}
