package roster

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Students"

var exportColumns = []struct {
	title string
	width float64
}{
	{"#", 5},
	{"Full name", 24},
	{"Phone", 18},
	{"Group", 12},
	{"Weekdays", 34},
}

// Export writes the owner's roster as an xlsx workbook.
func (s *Service) Export(ctx context.Context, ownerID string, w io.Writer) error {
	students, err := s.List(ctx, ownerID, "")
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	for i, col := range exportColumns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(exportSheet, name, name, col.width); err != nil {
			return err
		}
		if err := f.SetCellValue(exportSheet, name+"1", col.title); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(exportSheet, "A1", "E1", bold); err != nil {
		return err
	}

	for i, st := range students {
		days := make([]string, len(st.WeekDays))
		for j, d := range st.WeekDays {
			days[j] = string(d)
		}
		row := []any{i + 1, st.FullName, st.PhoneNumber, st.Group, strings.Join(days, ", ")}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		s.log.Error().Err(err).Str("owner", ownerID).Msg("write roster export failed")
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
