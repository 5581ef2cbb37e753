package models

import (
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/ekaya-inc/survey-engine/pkg/jsonutil"
)

// Field identifies a denormalized SurveyRow column.
type Field string

const (
	FieldSpecialty    Field = "specialty"
	FieldRegion       Field = "region"
	FieldProviderType Field = "provider_type"
	FieldVariable     Field = "variable"
	FieldP25          Field = "p25"
	FieldP50          Field = "p50"
	FieldP75          Field = "p75"
	FieldP90          Field = "p90"
	FieldNOrgs        Field = "n_orgs"
	FieldNIncumbents  Field = "n_incumbents"
)

// fieldAliases lists, in priority order, the header keys historically used for
// each field. Keys are compared after HeaderKey normalization, so "Provider Type",
// "provider_type" and "providerType" all match "providertype".
var fieldAliases = map[Field][]string{
	FieldSpecialty:    {"specialty", "normalizedspecialty", "specialtyname"},
	FieldRegion:       {"region", "geographicregion", "geographic"},
	FieldProviderType: {"providertype", "provider"},
	FieldVariable:     {"variable", "benchmark", "metric"},
	FieldP25:          {"p25", "25th", "25thpercentile", "percentile25"},
	FieldP50:          {"p50", "50th", "50thpercentile", "percentile50", "median"},
	FieldP75:          {"p75", "75th", "75thpercentile", "percentile75"},
	FieldP90:          {"p90", "90th", "90thpercentile", "percentile90"},
	FieldNOrgs:        {"norgs", "orgs", "numorgs", "organizations"},
	FieldNIncumbents:  {"nincumbents", "incumbents", "numincumbents", "providers"},
}

// LabelFieldForKind returns the row field holding labels of a mapping kind.
// The column kind has no row field: its labels are survey headers.
func LabelFieldForKind(kind MappingKind) (Field, bool) {
	switch kind {
	case MappingKindSpecialty:
		return FieldSpecialty, true
	case MappingKindRegion:
		return FieldRegion, true
	case MappingKindProviderType:
		return FieldProviderType, true
	case MappingKindVariable:
		return FieldVariable, true
	default:
		return "", false
	}
}

// HeaderKey normalizes a header for alias matching: lower-case letters and digits only.
func HeaderKey(header string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(header) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchField returns the field a header maps to, if any.
func MatchField(header string) (Field, bool) {
	key := HeaderKey(header)
	if key == "" {
		return "", false
	}
	for field, aliases := range fieldAliases {
		for _, alias := range aliases {
			if key == alias {
				return field, true
			}
		}
	}
	return "", false
}

// Label returns the row's label for a field: the typed value first, then any
// raw cell whose header is an alias of the field, in alias priority order.
func (r *SurveyRow) Label(field Field) string {
	var typed string
	switch field {
	case FieldSpecialty:
		typed = r.Specialty
	case FieldRegion:
		typed = r.Region
	case FieldProviderType:
		typed = r.ProviderType
	case FieldVariable:
		typed = r.Variable
	}
	if strings.TrimSpace(typed) != "" {
		return typed
	}
	if len(r.Raw) == 0 {
		return ""
	}

	// Headers are visited in sorted order so rows with several headers of the
	// same alias always resolve to the same cell.
	headers := slices.Sorted(maps.Keys(r.Raw))
	for _, alias := range fieldAliases[field] {
		for _, header := range headers {
			if HeaderKey(header) != alias {
				continue
			}
			if s := jsonutil.FlexibleString(r.Raw[header]); strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}
