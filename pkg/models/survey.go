// Package models contains domain types for survey-engine.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/datatypes"
)

// ProviderType is the provider-type category a survey belongs to.
type ProviderType string

const (
	ProviderTypePhysician ProviderType = "PHYSICIAN"
	ProviderTypeAPP       ProviderType = "APP"
	ProviderTypeCall      ProviderType = "CALL"
	ProviderTypeCustom    ProviderType = "CUSTOM"
)

// ProviderTypes lists every known provider-type category.
var ProviderTypes = []ProviderType{
	ProviderTypePhysician,
	ProviderTypeAPP,
	ProviderTypeCall,
	ProviderTypeCustom,
}

// IsValid reports whether p is one of the known categories.
func (p ProviderType) IsValid() bool {
	for _, known := range ProviderTypes {
		if p == known {
			return true
		}
	}
	return false
}

// ParseProviderType parses a category case-insensitively.
// An empty string parses to the empty ProviderType, which means "no filter".
func ParseProviderType(s string) (ProviderType, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	p := ProviderType(strings.ToUpper(s))
	return p, p.IsValid()
}

// SurveyRecord is the metadata of one uploaded survey file.
// The survey-vendor Type doubles as the survey source for mapping purposes.
type SurveyRecord struct {
	ID           uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string                      `gorm:"type:text;not null;index" json:"user_id"`
	Name         string                      `gorm:"type:text;not null" json:"name"`
	Year         int                         `json:"year"`
	Type         string                      `gorm:"type:text;not null;index" json:"type"`
	ProviderType ProviderType                `gorm:"type:text" json:"provider_type,omitempty"`
	RowCount     int                         `json:"row_count"`
	Columns      datatypes.JSONSlice[string] `gorm:"type:json" json:"columns"`
	UploadedAt   time.Time                   `gorm:"not null" json:"uploaded_at"`
}

// TableName sets the local table name.
func (SurveyRecord) TableName() string { return "survey_records" }

// Source returns the survey source used to scope mappings. It is trimmed the
// same way mapping source entries are.
func (s *SurveyRecord) Source() string {
	return strings.TrimSpace(s.Type)
}

// SurveyRow is one denormalized data line of a survey.
// Raw keeps every original CSV cell keyed by header so historical
// field-name aliases can still be resolved.
type SurveyRow struct {
	ID           uint              `gorm:"primaryKey;autoIncrement" json:"-"`
	SurveyID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"survey_id"`
	UserID       string            `gorm:"type:text;not null;index" json:"-"`
	RowIndex     int               `gorm:"not null" json:"row_index"`
	Specialty    string            `gorm:"type:text" json:"specialty"`
	Region       string            `gorm:"type:text" json:"region"`
	ProviderType string            `gorm:"type:text" json:"provider_type"`
	Variable     string            `gorm:"type:text" json:"variable"`
	P25          *float64          `json:"p25"`
	P50          *float64          `json:"p50"`
	P75          *float64          `json:"p75"`
	P90          *float64          `json:"p90"`
	NOrgs        *int              `json:"n_orgs"`
	NIncumbents  *int              `json:"n_incumbents"`
	Raw          datatypes.JSONMap `gorm:"type:json" json:"raw,omitempty"`
}

// TableName sets the local table name.
func (SurveyRow) TableName() string { return "survey_rows" }

// NormalizeLabel returns the matching key for a raw label: trimmed and lower-cased.
// The originally observed casing is kept separately for display.
func NormalizeLabel(label string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(label))
}
