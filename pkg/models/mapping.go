package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MappingKind identifies which vocabulary a mapping standardizes.
type MappingKind string

const (
	MappingKindSpecialty    MappingKind = "specialty"
	MappingKindColumn       MappingKind = "column"
	MappingKindRegion       MappingKind = "region"
	MappingKindProviderType MappingKind = "provider_type"
	MappingKindVariable     MappingKind = "variable"
)

// MappingKinds lists every supported mapping kind.
var MappingKinds = []MappingKind{
	MappingKindSpecialty,
	MappingKindColumn,
	MappingKindRegion,
	MappingKindProviderType,
	MappingKindVariable,
}

// IsValid reports whether k is a supported mapping kind.
func (k MappingKind) IsValid() bool {
	for _, known := range MappingKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseMappingKind accepts the canonical value as well as the dashed
// form used in URLs ("provider-type").
func ParseMappingKind(s string) (MappingKind, bool) {
	k := MappingKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	return k, k.IsValid()
}

// Collection returns the remote collection name mappings of this kind sync into.
func (k MappingKind) Collection() string {
	return string(k) + "_mappings"
}

// MappingRecord groups one or more raw source labels under a canonical name.
type MappingRecord struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string        `gorm:"type:text;not null;index:idx_mapping_user_kind,priority:1" json:"-"`
	Kind          MappingKind   `gorm:"type:text;not null;index:idx_mapping_user_kind,priority:2" json:"kind"`
	CanonicalName string        `gorm:"type:text;not null" json:"canonical_name"`
	ProviderType  ProviderType  `gorm:"type:text" json:"provider_type,omitempty"`
	Sources       []SourceEntry `gorm:"foreignKey:MappingID;constraint:OnDelete:CASCADE" json:"sources"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TableName sets the local table name.
func (MappingRecord) TableName() string { return "mapping_records" }

// SourceEntry is one raw label observed in one survey source.
// The unique index on (user, kind, label key, source) enforces that a pair
// is claimed by at most one mapping of a kind.
type SourceEntry struct {
	ID           uint        `gorm:"primaryKey;autoIncrement" json:"-"`
	MappingID    uuid.UUID   `gorm:"type:uuid;not null;index" json:"-"`
	UserID       string      `gorm:"type:text;not null;uniqueIndex:idx_source_claim,priority:1" json:"-"`
	Kind         MappingKind `gorm:"type:text;not null;uniqueIndex:idx_source_claim,priority:2" json:"-"`
	LabelKey     string      `gorm:"type:text;not null;uniqueIndex:idx_source_claim,priority:3" json:"-"`
	SurveySource string      `gorm:"type:text;not null;uniqueIndex:idx_source_claim,priority:4" json:"survey_source"`
	RawLabel     string      `gorm:"type:text;not null" json:"raw_label"`
	Frequency    int         `json:"frequency"`
	Position     int         `json:"-"`
}

// TableName sets the local table name.
func (SourceEntry) TableName() string { return "mapping_sources" }

// Claim returns the (label, source) identity of the entry.
func (e SourceEntry) Claim() SourceClaim {
	return SourceClaim{LabelKey: NormalizeLabel(e.RawLabel), SurveySource: e.SurveySource}
}

// SourceClaim is the identity of a raw label within a survey source.
type SourceClaim struct {
	LabelKey     string `json:"label"`
	SurveySource string `json:"survey_source"`
}

// UnmappedEntity is a raw label from one survey source that no mapping or
// learned mapping covers yet. It is derived on every query and never stored.
type UnmappedEntity struct {
	RawLabel     string       `json:"raw_label"`
	Frequency    int          `json:"frequency"`
	SurveySource string       `json:"survey_source"`
	ProviderType ProviderType `json:"provider_type"`
}

// AutoMapConfig tunes automatic mapping suggestions.
type AutoMapConfig struct {
	ConfidenceThreshold     float64 `json:"confidence_threshold"`
	IncludeDataTypeMatching bool    `json:"include_data_type_matching"`
}

// DefaultAutoMapConfig returns the thresholds used when callers send none.
func DefaultAutoMapConfig() AutoMapConfig {
	return AutoMapConfig{
		ConfidenceThreshold:     0.8,
		IncludeDataTypeMatching: true,
	}
}

// AutoMapSuggestion proposes grouping source entries under a canonical name.
// ExistingMappingID is set when the canonical name belongs to a stored mapping.
type AutoMapSuggestion struct {
	CanonicalName     string        `json:"canonical_name"`
	ExistingMappingID *uuid.UUID    `json:"existing_mapping_id,omitempty"`
	Sources           []SourceEntry `json:"sources"`
	Score             float64       `json:"score"`
}
