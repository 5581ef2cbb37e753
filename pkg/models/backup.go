package models

// BackupVersion is the format version written into exports.
const BackupVersion = "1.0"

// SurveyBackup is one survey together with its rows.
type SurveyBackup struct {
	SurveyRecord
	Rows []SurveyRow `json:"rows"`
}

// BackupExport is the JSON document produced by export-all.
type BackupExport struct {
	Surveys      []SurveyBackup `json:"surveys"`
	ExportDate   string         `json:"exportDate"`
	Version      string         `json:"version"`
	TotalSurveys int            `json:"totalSurveys"`
}
