package services

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/repositories"
)

// mappingSheetHeader is the header row of every mapping sheet.
var mappingSheetHeader = []string{
	"Canonical Name",
	"Provider Type",
	"Raw Label",
	"Survey Source",
	"Frequency",
}

var mappingSheetWidths = []float64{30, 15, 30, 20, 12}

// ExportService renders mappings as spreadsheets.
type ExportService interface {
	// WriteMappingsWorkbook writes one sheet per mapping kind, one line per source entry.
	WriteMappingsWorkbook(ctx context.Context, userID string, w io.Writer) error
}

type exportService struct {
	mappingRepo repositories.MappingRepository
	logger      *zap.Logger
}

// NewExportService creates a new ExportService.
func NewExportService(mappingRepo repositories.MappingRepository, logger *zap.Logger) ExportService {
	return &exportService{
		mappingRepo: mappingRepo,
		logger:      logger.Named("export"),
	}
}

var _ ExportService = (*exportService)(nil)

func (s *exportService) WriteMappingsWorkbook(ctx context.Context, userID string, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	total := 0
	for i, kind := range models.MappingKinds {
		mappings, err := s.mappingRepo.ListByKind(ctx, userID, kind)
		if err != nil {
			return err
		}

		sheet := string(kind)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}

		if err := writeMappingSheet(f, sheet, headerStyle, mappings); err != nil {
			return err
		}
		total += len(mappings)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Debug("Exported mappings workbook", zap.Int("mappings", total))
	return nil
}

func writeMappingSheet(f *excelize.File, sheet string, headerStyle int, mappings []*models.MappingRecord) error {
	for col, header := range mappingSheetHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheet, name, name, mappingSheetWidths[col]); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	row := 2
	for _, m := range mappings {
		for _, src := range m.Sources {
			values := []interface{}{m.CanonicalName, string(m.ProviderType), src.RawLabel, src.SurveySource, src.Frequency}
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return fmt.Errorf("failed to write row %d: %w", row, err)
			}
			row++
		}
	}
	return nil
}
