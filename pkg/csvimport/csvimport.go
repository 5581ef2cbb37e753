// Package csvimport turns survey CSV files into denormalized survey rows.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ekaya-inc/survey-engine/pkg/apperrors"
	"github.com/ekaya-inc/survey-engine/pkg/models"
)

// Result is a parsed survey file. Rows carry no survey or user id yet.
type Result struct {
	Columns []string
	Rows    []models.SurveyRow
	// Skipped counts records whose field count differs from the header.
	Skipped int
}

// Parse reads a header line followed by records. Records with a field-count
// mismatch are skipped; a file without any valid record returns
// apperrors.ErrEmptyResult.
func Parse(r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("survey file has no header: %w", apperrors.ErrEmptyResult)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		columns[i] = strings.TrimSpace(h)
	}

	fields := make([]models.Field, len(columns))
	for i, c := range columns {
		if f, ok := models.MatchField(c); ok {
			fields[i] = f
		}
	}

	result := &Result{Columns: columns}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Skipped++
				continue
			}
			return nil, fmt.Errorf("failed to read survey file: %w", err)
		}
		if len(record) != len(columns) {
			result.Skipped++
			continue
		}
		if isBlank(record) {
			continue
		}

		row := models.SurveyRow{
			RowIndex: len(result.Rows),
			Raw:      make(map[string]interface{}, len(columns)),
		}
		for i, value := range record {
			value = strings.TrimSpace(value)
			if columns[i] != "" {
				row.Raw[columns[i]] = value
			}
			assign(&row, fields[i], value)
		}
		result.Rows = append(result.Rows, row)
	}

	if len(result.Rows) == 0 {
		return nil, apperrors.ErrEmptyResult
	}
	return result, nil
}

// assign stores value in the typed field. The first non-empty cell wins when
// several headers alias the same field.
func assign(row *models.SurveyRow, field models.Field, value string) {
	if value == "" {
		return
	}
	setString := func(dst *string) {
		if *dst == "" {
			*dst = value
		}
	}
	setFloat := func(dst **float64) {
		if *dst == nil {
			*dst = ParseNumber(value)
		}
	}
	setInt := func(dst **int) {
		if *dst != nil {
			return
		}
		*dst = ParseCount(value)
	}

	switch field {
	case models.FieldSpecialty:
		setString(&row.Specialty)
	case models.FieldRegion:
		setString(&row.Region)
	case models.FieldProviderType:
		setString(&row.ProviderType)
	case models.FieldVariable:
		setString(&row.Variable)
	case models.FieldP25:
		setFloat(&row.P25)
	case models.FieldP50:
		setFloat(&row.P50)
	case models.FieldP75:
		setFloat(&row.P75)
	case models.FieldP90:
		setFloat(&row.P90)
	case models.FieldNOrgs:
		setInt(&row.NOrgs)
	case models.FieldNIncumbents:
		setInt(&row.NIncumbents)
	}
}

// ParseNumber parses survey numbers such as "$1,234.50", "12%" or "(150)".
// Suppressed or missing values ("", "*", "n/a", "-") return nil.
func ParseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "*", "-", "--", "n/a", "na", "null", "none":
		return nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(s)

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	if negative {
		f = -f
	}
	return &f
}

// maxCount bounds organization and incumbent counts so they fit an int everywhere.
const maxCount = math.MaxInt32

// ParseCount parses a count cell, rounding to the nearest whole number. Values
// that are negative or larger than maxCount are treated as missing.
func ParseCount(s string) *int {
	f := ParseNumber(s)
	if f == nil {
		return nil
	}
	rounded := math.Round(*f)
	if rounded < 0 || rounded > maxCount {
		return nil
	}
	n := int(rounded)
	return &n
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
