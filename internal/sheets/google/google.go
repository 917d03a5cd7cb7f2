// Package google mirrors the ledger into a Google spreadsheet using a
// service account.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"casheye/internal/config"
	"casheye/internal/core"
	"casheye/internal/log"
	"casheye/internal/parser"
	"casheye/internal/report"
	ports "casheye/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	ledgerSheet   string
	logger        *log.Logger
}

var _ ports.Sink = (*Client)(nil)

// New wraps an existing service. Tests pass one built with
// option.WithEndpoint.
func New(svc *gsheet.Service, spreadsheetID, ledgerSheet string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default(log.ComponentSheets)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		ledgerSheet:   ledgerSheet,
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

// NewFromConfig builds a client authenticated with the configured service
// account.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	if err := cfg.ValidateSheets(); err != nil {
		return nil, err
	}
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]goption.ClientOption{
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, opts...)

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return New(svc, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, logger), nil
}

func credentials(cfg *config.Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.GoogleServiceAccountJSON) != "":
		return []byte(cfg.GoogleServiceAccountJSON), nil
	case strings.TrimSpace(cfg.GoogleServiceAccountFile) != "":
		b, err := os.ReadFile(cfg.GoogleServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
}

func (c *Client) ledgerRange() string {
	return fmt.Sprintf("%s!A:G", c.ledgerSheet)
}

// ListLines reads every ledger row of the sheet.
func (c *Client) ListLines(ctx context.Context) ([]core.ReceiptLine, error) {
	values, err := c.readLedger(ctx)
	if err != nil {
		return nil, err
	}
	return parseLedgerRows(values), nil
}

func (c *Client) readLedger(ctx context.Context) ([][]any, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.ledgerRange()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.ledgerRange(), err)
	}
	return resp.Values, nil
}

// AppendLines writes the lines whose identity is not in the sheet yet. An
// empty sheet gets the ledger header first. Redelivered messages are
// therefore harmless.
func (c *Client) AppendLines(ctx context.Context, lines []core.ReceiptLine) (int, error) {
	if len(lines) == 0 {
		return 0, nil
	}
	values, err := c.readLedger(ctx)
	if err != nil {
		return 0, err
	}

	seen := map[core.LineKey]struct{}{}
	for _, l := range parseLedgerRows(values) {
		seen[l.Key()] = struct{}{}
	}

	var rows [][]any
	if len(values) == 0 {
		header := []any{}
		for _, h := range strings.Split(parser.Header, ",") {
			header = append(header, h)
		}
		rows = append(rows, header)
	}
	written := 0
	for _, l := range lines {
		if _, ok := seen[l.Key()]; ok {
			continue
		}
		seen[l.Key()] = struct{}{}
		rows = append(rows, lineRow(l))
		written++
	}
	if written == 0 {
		c.logger.DebugContext(ctx, "All lines already mirrored", log.FieldDuplicates, len(lines))
		return 0, nil
	}

	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.ledgerRange(), &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("append to %s: %w", c.ledgerSheet, err)
	}

	c.logger.InfoContext(ctx, "Appended ledger rows",
		log.FieldAdded, written, log.FieldDuplicates, len(lines)-written)
	return written, nil
}

// WriteTable clears sheet and writes t starting at A1.
func (c *Client) WriteTable(ctx context.Context, sheet string, t report.Table) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:ZZ", sheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}

	header := []any{}
	for _, h := range t.Header() {
		header = append(header, h)
	}
	rows := [][]any{header}
	for _, r := range t.Rows {
		row := []any{r.Label}
		for _, v := range r.Values {
			row = append(row, v)
		}
		rows = append(rows, row)
	}

	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("%s!A1", sheet), &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", sheet, err)
	}
	return nil
}
