package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"nobat/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsService mirrors the appointment ledger into a spreadsheet the
// operator can read. The sheet is append-only; the sqlite ledger stays
// the source of truth.
type SheetsService struct {
	service   *sheets.Service
	sheetID   string
	sheetName string
}

func NewSheetsService(credentialsFile, sheetID, sheetName string) (*SheetsService, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client := config.Client(ctx)

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &SheetsService{
		service:   srv,
		sheetID:   sheetID,
		sheetName: sheetName,
	}, nil
}

// TestConnection reads the first cell to prove access to the sheet.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.sheetID, s.sheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail returns the service account email so the
// operator knows whom to share the sheet with.
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}

	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}

	return creds.ClientEmail, nil
}

// AppendAppointment adds one appointment row to the sheet.
func (s *SheetsService) AppendAppointment(ctx context.Context, appt *models.Appointment) error {
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{appointmentRowValues(appt)},
	}

	_, err := s.service.Spreadsheets.Values.Append(s.sheetID, s.sheetName+"!A:F", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append appointment %d: %v", appt.ID, err)
	}
	return nil
}

func appointmentRowValues(appt *models.Appointment) []interface{} {
	return []interface{}{
		appt.ID,
		appt.Timeslot,
		appt.PhoneNumber,
		appt.InvoiceID,
		appt.PaymentTransID,
		appt.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
