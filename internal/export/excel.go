package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"nobat/internal/domain"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Appointments"

// Service writes appointment ranges to xlsx files for the operator.
type Service struct {
	ledger domain.Ledger
	path   string
	logger *zerolog.Logger
}

func NewService(ledger domain.Ledger, path string, logger *zerolog.Logger) *Service {
	return &Service{ledger: ledger, path: path, logger: logger}
}

// ExportAppointments writes every appointment within [from, to] to an
// xlsx file and returns its path.
func (s *Service) ExportAppointments(ctx context.Context, from, to time.Time) (string, error) {
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	appts, err := s.ledger.ListRange(ctx,
		from.Format("2006-01-02")+" 00:00",
		to.Format("2006-01-02")+" 23:59")
	if err != nil {
		return "", fmt.Errorf("error getting appointments: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s",
		from.Format("2006-01-02"), to.Format("2006-01-02")))
	_ = f.MergeCell(sheetName, "A1", "F1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headers := []string{"ID", "Timeslot", "Phone", "Invoice ID", "Payment Trans ID", "Created At"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, appt := range appts {
		row := i + 3
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), appt.ID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), appt.Timeslot)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), appt.PhoneNumber)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), appt.InvoiceID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), appt.PaymentTransID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), appt.CreatedAt.Format("02.01.2006 15:04"))
	}

	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", "B", 20)
	_ = f.SetColWidth(sheetName, "C", "C", 18)
	_ = f.SetColWidth(sheetName, "D", "E", 38)
	_ = f.SetColWidth(sheetName, "F", "F", 20)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("appointments_%s_to_%s.xlsx",
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	filePath := filepath.Join(s.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	s.logger.Info().Str("file_path", filePath).Int("rows", len(appts)).Msg("Excel file created")
	return filePath, nil
}
