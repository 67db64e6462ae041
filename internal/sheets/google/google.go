package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"expensee/internal/core"
	ports "expensee/internal/sheets"
)

const valueInput = "USER_ENTERED"

// Options configures the Sheets mirror.
type Options struct {
	SpreadsheetID string
	// SheetName is the base tab name. With YearlySheets the tab used for a
	// row is "<year> <SheetName>", chosen by the transaction date.
	SheetName    string
	YearlySheets bool

	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	yearly        bool
	now           func() time.Time
}

var _ ports.Ledger = (*Client)(nil)

// NewClient creates a Sheets client authenticated with a service account.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = "Ledger"
	}

	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		sheetBase:     base,
		yearly:        opts.YearlySheets,
		now:           time.Now,
	}, nil
}

// newSheetsService falls back to GOOGLE_APPLICATION_CREDENTIALS when no
// credentials were configured.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	credsJSON := strings.TrimSpace(opts.CredentialsJSON)
	credsFile := strings.TrimSpace(opts.CredentialsFile)
	if credsJSON == "" && credsFile == "" {
		credsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var raw []byte
	switch {
	case credsJSON != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		raw = []byte(credsJSON)
	case credsFile != "":
		data, err := os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Read service account credentials", "path", credsFile, "size", len(data))
		raw = data
	default:
		return nil, errors.New("missing service account credentials")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(raw),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

func (c *Client) sheetFor(year int) string {
	if !c.yearly {
		return c.sheetBase
	}
	return yearPrefixedName(c.sheetBase, year)
}

func (c *Client) readRows(ctx context.Context, sheet string) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:H", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

// tabs lists the tabs that can hold ledger rows. With yearly sheets every
// "<year> <base>" tab counts, since a row follows its transaction date and
// that date can change.
func (c *Client) tabs(ctx context.Context) ([]string, error) {
	if !c.yearly {
		return []string{c.sheetBase}, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	titles := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	return ledgerTabs(titles, c.sheetBase), nil
}

// locate finds every copy of the (account, voucher) row across tabs.
func (c *Client) locate(ctx context.Context, tabs []string, acct core.AccountID, voucher string) ([]rowLoc, error) {
	var found []rowLoc
	for _, tab := range tabs {
		values, err := c.readRows(ctx, tab)
		if err != nil {
			return nil, err
		}
		for _, n := range findRows(values, acct, voucher) {
			found = append(found, rowLoc{sheet: tab, row: n})
		}
	}
	return found, nil
}

func (c *Client) ensureTab(ctx context.Context, tabs []string, sheet string) error {
	if slices.Contains(tabs, sheet) {
		return nil
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %s: %w", sheet, err)
	}
	slog.InfoContext(ctx, "Created ledger tab", "sheet", sheet)
	return nil
}

func (c *Client) clear(ctx context.Context, locs []rowLoc) error {
	if len(locs) == 0 {
		return nil
	}
	ranges := make([]string, len(locs))
	for i, l := range locs {
		ranges[i] = l.a1()
	}
	req := &gsheet.BatchClearValuesRequest{Ranges: ranges}
	if _, err := c.svc.Spreadsheets.Values.BatchClear(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %v: %w", ranges, err)
	}
	slog.DebugContext(ctx, "Cleared ledger rows", "ranges", ranges)
	return nil
}

// UpsertRow writes the row into the tab of its date. An existing copy there
// is updated in place; copies left in other tabs by an earlier date are
// cleared.
func (c *Client) UpsertRow(ctx context.Context, r ports.Row) (string, error) {
	if r.VoucherID == "" {
		return "", errors.New("row has no voucher id")
	}
	year := r.Date.Year()
	if r.Date.IsZero() {
		year = c.now().Year()
	}
	sheet := c.sheetFor(year)

	tabs, err := c.tabs(ctx)
	if err != nil {
		return "", err
	}
	found, err := c.locate(ctx, tabs, r.Account, r.VoucherID)
	if err != nil {
		return "", err
	}
	current, ok, stale := planUpsert(sheet, found)
	if err := c.clear(ctx, stale); err != nil {
		return "", err
	}
	vr := &gsheet.ValueRange{Values: [][]any{r.Values()}}

	if ok {
		rng := current.a1()
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption(valueInput).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("update %s: %w", rng, err)
		}
		slog.DebugContext(ctx, "Updated ledger row", "range", rng, "voucher", r.VoucherID)
		return rng, nil
	}

	if err := c.ensureTab(ctx, tabs, sheet); err != nil {
		return "", err
	}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, fmt.Sprintf("%s!A:H", sheet), vr).
		ValueInputOption(valueInput).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", sheet, err)
	}
	ref := sheet
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	slog.DebugContext(ctx, "Appended ledger row", "range", ref, "voucher", r.VoucherID)
	return ref, nil
}

// DeleteByVoucher clears the row wherever it lives.
func (c *Client) DeleteByVoucher(ctx context.Context, acct core.AccountID, voucher string) error {
	tabs, err := c.tabs(ctx)
	if err != nil {
		return err
	}
	found, err := c.locate(ctx, tabs, acct, voucher)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		slog.DebugContext(ctx, "Ledger row already absent", "voucher", voucher)
		return nil
	}
	return c.clear(ctx, found)
}

// PruneAccount clears the rows of acct whose vouchers are not in keep.
func (c *Client) PruneAccount(ctx context.Context, acct core.AccountID, keep map[string]struct{}) (int, error) {
	tabs, err := c.tabs(ctx)
	if err != nil {
		return 0, err
	}
	var stale []rowLoc
	for _, tab := range tabs {
		values, err := c.readRows(ctx, tab)
		if err != nil {
			return 0, err
		}
		for _, n := range staleRows(values, acct, keep) {
			stale = append(stale, rowLoc{sheet: tab, row: n})
		}
	}
	if err := c.clear(ctx, stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}
