package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	defaultSheetName    = "Ledger"
	defaultIndexTTL     = 5 * time.Minute
	lastColumn          = "G"
	valueInputOptionRaw = "RAW"
)

// Client mirrors transactions into one sheet, one row per transaction with
// the id in column A. The id-to-row index is cached and rebuilt when it
// expires or a write fails.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	mu                 sync.Mutex
	index              *rowIndex
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

var _ ports.Mirror = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Ledger")
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS; or an OAuth client
// (GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE) together with
// the token saved by ledger-sheets-auth in GOOGLE_OAUTH_TOKEN_FILE.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetName == "" {
		sheetName = defaultSheetName
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID, sheetName), nil
}

func New(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetName:          sheetName,
		cacheValidDuration: defaultIndexTTL,
	}
}

// newSheetsService initializes a Sheets Service. Service account
// credentials win over OAuth user credentials when both are set.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	if !hasServiceAccount() {
		if oauthCfg, err := OAuthConfigFromEnv(); err == nil {
			return newOAuthService(ctx, oauthCfg)
		}
	}

	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "credentials_size", len(credentialsJSON))
	return service, nil
}

func hasServiceAccount() bool {
	for _, key := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"} {
		if strings.TrimSpace(os.Getenv(key)) != "" {
			return true
		}
	}
	return false
}

// OAuthConfigFromEnv builds the OAuth client config for the Sheets scope from
// GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE.
func OAuthConfigFromEnv() (*oauth2.Config, error) {
	clientJSON := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"))
	clientFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"))

	var b []byte
	switch {
	case clientJSON != "":
		b = []byte(clientJSON)
	case clientFile != "":
		data, err := os.ReadFile(clientFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth client file: %w", err)
		}
		b = data
	default:
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}

	cfg, err := googleoauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// TokenFile is where the OAuth token is read from and saved to.
func TokenFile() string {
	if f := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")); f != "" {
		return f
	}
	return "token.json"
}

// LoadToken reads a token saved by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

// SaveToken writes tok to path, readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}

func newOAuthService(ctx context.Context, cfg *oauth2.Config) (*gsheet.Service, error) {
	tok, err := LoadToken(TokenFile())
	if err != nil {
		return nil, err
	}
	service, err := gsheet.NewService(ctx, goption.WithTokenSource(cfg.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created with OAuth token")
	return service, nil
}

// UpsertRow rewrites the row holding tx.ID, or fills the first free row.
func (c *Client) UpsertRow(ctx context.Context, tx core.Transaction) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.loadIndex(ctx)
	if err != nil {
		return err
	}

	row, existed := idx.rows[tx.ID]
	if !existed {
		row = idx.allocate()
	}

	values := make([]any, 0, len(ports.Header))
	for _, v := range ports.RowValues(tx) {
		values = append(values, v)
	}
	rng := c.rowRange(row)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{values}}).
		ValueInputOption(valueInputOptionRaw).Context(ctx).Do()
	if err != nil {
		c.invalidate()
		return fmt.Errorf("update %s: %w", rng, err)
	}

	idx.rows[tx.ID] = row
	slog.InfoContext(ctx, "Transaction mirrored to sheet",
		"transaction_id", tx.ID,
		"row", row,
		"updated", existed)
	return nil
}

// DeleteRow clears the row holding id. Clearing an absent id is a no-op.
func (c *Client) DeleteRow(ctx context.Context, id string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.loadIndex(ctx)
	if err != nil {
		return err
	}
	row, ok := idx.rows[id]
	if !ok {
		return nil
	}

	rng := c.rowRange(row)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		c.invalidate()
		return fmt.Errorf("clear %s: %w", rng, err)
	}

	idx.release(id)
	slog.InfoContext(ctx, "Transaction removed from sheet", "transaction_id", id, "row", row)
	return nil
}

// ListIDs reads column A afresh and returns the ids in it, sorted.
func (c *Client) ListIDs(ctx context.Context) ([]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalidate()
	idx, err := c.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	return idx.ids(), nil
}

// loadIndex must be called with mu held.
func (c *Client) loadIndex(ctx context.Context) (*rowIndex, error) {
	if c.index != nil && time.Now().Before(c.cacheExpiresAt) {
		return c.index, nil
	}

	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	if len(resp.Values) == 0 {
		if err := c.writeHeader(ctx); err != nil {
			return nil, err
		}
	}

	c.index = buildIndex(resp.Values)
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	return c.index, nil
}

func (c *Client) writeHeader(ctx context.Context) error {
	header := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		header[i] = h
	}
	rng := c.rowRange(1)
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption(valueInputOptionRaw).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header %s: %w", rng, err)
	}
	return nil
}

// invalidate must be called with mu held.
func (c *Client) invalidate() {
	c.index = nil
	c.cacheExpiresAt = time.Time{}
}

func (c *Client) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", c.sheetName, row, lastColumn, row)
}

// rowIndex maps ids to 1-based sheet rows. Row 1 is the header.
type rowIndex struct {
	rows map[string]int
	free []int
	next int
}

// buildIndex reads column A values as returned by the Sheets API: blank
// cells in the middle come back as empty rows, trailing blanks are omitted.
func buildIndex(values [][]any) *rowIndex {
	idx := &rowIndex{rows: make(map[string]int), next: 2}
	for i, row := range values {
		n := i + 1
		if n == 1 {
			continue
		}
		idx.next = n + 1
		id := ""
		if len(row) > 0 {
			id = strings.TrimSpace(fmt.Sprint(row[0]))
		}
		if id == "" {
			idx.free = append(idx.free, n)
			continue
		}
		if _, dup := idx.rows[id]; dup {
			continue
		}
		idx.rows[id] = n
	}
	return idx
}

// allocate returns the lowest free row, reusing cleared rows first.
func (idx *rowIndex) allocate() int {
	if len(idx.free) > 0 {
		sort.Ints(idx.free)
		row := idx.free[0]
		idx.free = idx.free[1:]
		return row
	}
	row := idx.next
	idx.next++
	return row
}

func (idx *rowIndex) release(id string) {
	row, ok := idx.rows[id]
	if !ok {
		return
	}
	delete(idx.rows, id)
	idx.free = append(idx.free, row)
}

func (idx *rowIndex) ids() []string {
	out := make([]string, 0, len(idx.rows))
	for id := range idx.rows {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
