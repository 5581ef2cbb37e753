package models

import "time"

// LearnedMapping is a lightweight correction remembered from earlier mapping work.
// Identity is (user, type, original label); provider type and survey source are
// metadata, so saving the same original twice overwrites the earlier correction.
type LearnedMapping struct {
	ID           uint         `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID       string       `gorm:"type:text;not null;uniqueIndex:idx_learned_key,priority:1" json:"-"`
	Type         MappingKind  `gorm:"type:text;not null;uniqueIndex:idx_learned_key,priority:2" json:"type"`
	OriginalKey  string       `gorm:"type:text;not null;uniqueIndex:idx_learned_key,priority:3" json:"-"`
	Original     string       `gorm:"type:text;not null" json:"original"`
	Corrected    string       `gorm:"type:text;not null" json:"corrected"`
	ProviderType ProviderType `gorm:"type:text" json:"provider_type,omitempty"`
	SurveySource string       `gorm:"type:text" json:"survey_source,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// TableName sets the local table name.
func (LearnedMapping) TableName() string { return "learned_mappings" }

// AppliesTo reports whether the entry resolves labels from the given source.
// Entries without a source apply to every source.
func (l *LearnedMapping) AppliesTo(surveySource string) bool {
	return l.SurveySource == "" || l.SurveySource == surveySource
}
