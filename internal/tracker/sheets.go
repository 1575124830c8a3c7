package tracker

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/pkg/logger"
)

// SheetColumns defines the column headers for the Runs sheet
var SheetColumns = []string{
	"Run ID",
	"Date",
	"Topic",
	"Source URL",
	"Mode",
	"Image",
	"Status",
	"Reason",
	"Approval",
	"LinkedIn URN",
	"LinkedIn URL",
	"Detail",
}

// Entry is one finished run
type Entry struct {
	Run     *models.Run
	Outcome models.Outcome
}

func (e Entry) row() []interface{} {
	status := "NOT POSTED"
	if e.Outcome.Posted {
		status = "SUCCESS"
	}
	postURL := ""
	if e.Outcome.PostURN != "" {
		postURL = "https://www.linkedin.com/feed/update/" + e.Outcome.PostURN
	}
	return []interface{}{
		e.Outcome.RunID,
		e.Outcome.FinishedAt.Format(time.RFC3339),
		e.Run.Topic.Title,
		e.Run.Topic.URL,
		string(e.Run.Mode),
		e.Run.ImageSource,
		status,
		string(e.Outcome.Reason),
		string(e.Outcome.Approval),
		e.Outcome.PostURN,
		postURL,
		e.Outcome.Detail,
	}
}

// SheetsTracker appends one row per run to a Google Sheet
type SheetsTracker struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	log           *logger.Logger
}

// NewSheetsTracker creates a new Google Sheets tracker. It returns nil when
// tracking is disabled; a nil tracker records nothing.
func NewSheetsTracker(ctx context.Context, cfg config.TrackerConfig, log *logger.Logger, opts ...option.ClientOption) (*SheetsTracker, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.SpreadsheetID == "" {
		return nil, errs.Configuration("tracker.spreadsheet_id is required when the tracker is enabled")
	}

	// Explicit options (tests, custom transports) win over credentials
	if len(opts) == 0 {
		switch {
		case cfg.ServiceAccountJSON != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
		case cfg.CredentialsFile != "":
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		default:
			return nil, errs.Configuration("no Google credentials provided: set tracker.credentials_file or tracker.service_account_json")
		}
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	sheetName := cfg.SheetName
	if sheetName == "" {
		sheetName = "Runs"
	}

	return &SheetsTracker{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
		log:           log.WithComponent("sheets-tracker"),
	}, nil
}

// InitializeSheet creates the sheet and headers if they don't exist
func (t *SheetsTracker) InitializeSheet(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if err := t.ensureSheetExists(ctx); err != nil {
		return err
	}

	readRange := fmt.Sprintf("%s!A1:L1", t.sheetName)
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet: %w", err)
	}

	if len(resp.Values) == 0 {
		t.log.Info().Msg("Initializing sheet with headers")
		return t.writeHeaders(ctx)
	}

	t.log.Debug().Msg("Sheet already has headers")
	return nil
}

// ensureSheetExists creates the sheet if it doesn't exist
func (t *SheetsTracker) ensureSheetExists(ctx context.Context) error {
	spreadsheet, err := t.service.Spreadsheets.Get(t.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == t.sheetName {
			return nil
		}
	}

	t.log.Info().Str("sheet", t.sheetName).Msg("Creating new sheet")
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: t.sheetName,
					},
				},
			},
		},
	}

	if _, err := t.service.Spreadsheets.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	return nil
}

// writeHeaders writes column headers to the first row
func (t *SheetsTracker) writeHeaders(ctx context.Context) error {
	var headerRow []interface{}
	for _, col := range SheetColumns {
		headerRow = append(headerRow, col)
	}

	writeRange := fmt.Sprintf("%s!A1", t.sheetName)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{headerRow},
	}

	_, err := t.service.Spreadsheets.Values.Update(t.spreadsheetID, writeRange, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	return nil
}

// Record appends the run's outcome as a new row
func (t *SheetsTracker) Record(ctx context.Context, e Entry) error {
	if t == nil {
		return nil
	}

	appendRange := fmt.Sprintf("%s!A:L", t.sheetName)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{e.row()},
	}

	_, err := t.service.Spreadsheets.Values.Append(t.spreadsheetID, appendRange, valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append run row: %w", err)
	}

	t.log.Info().
		Str("run_id", e.Outcome.RunID).
		Str("reason", string(e.Outcome.Reason)).
		Msg("Run recorded in tracker")
	return nil
}
