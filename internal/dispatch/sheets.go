package dispatch

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetWriter is the slice of the spreadsheet service the legacy export
// path needs: clear a fixed row range, then write a flat block of values.
type SheetWriter interface {
	ClearRange(ctx context.Context, spreadsheetID, rng string) error
	WriteRows(ctx context.Context, spreadsheetID, rng string, rows [][]any) error
}

// SheetsStore implements SheetWriter on the Google Sheets API.
type SheetsStore struct {
	client *sheets.Service
}

// NewSheetsStore builds a Sheets-backed SheetWriter from a Service Account
// credentials file.
func NewSheetsStore(ctx context.Context, credentialsPath string) (*SheetsStore, error) {
	client, err := sheets.NewService(ctx, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsStore{client: client}, nil
}

func (s *SheetsStore) ClearRange(ctx context.Context, spreadsheetID, rng string) error {
	_, err := s.client.Spreadsheets.Values.
		Clear(spreadsheetID, rng, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("clear range %s: %w", rng, err)
	}
	return nil
}

func (s *SheetsStore) WriteRows(ctx context.Context, spreadsheetID, rng string, rows [][]any) error {
	_, err := s.client.Spreadsheets.Values.
		Update(spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write range %s: %w", rng, err)
	}
	return nil
}
