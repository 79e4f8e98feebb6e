package dispatcher

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nestware/homesift/models"
)

// SheetSink appends records as rows to a spreadsheet tab over its append
// API. Rows are buffered up to batchSize and drained either when the buffer
// fills or at end-of-run Flush. A batch size of 1 (the default) submits
// every record immediately, keeping per-record retry semantics exact.
type SheetSink struct {
	client    *resty.Client
	appendURL string
	batchSize int

	mu  sync.Mutex
	buf [][]string
}

// NewSheetSink builds the sink from the sheet URL, worksheet name, and the
// credential file holding the API bearer token.
func NewSheetSink(sheetURL, sheetName, credentialsPath string, batchSize int) (*SheetSink, error) {
	raw, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeCredentials,
			fmt.Sprintf("cannot read sheet credentials at %q", credentialsPath), err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return nil, models.NewRunError(models.ErrCodeCredentials,
			fmt.Sprintf("sheet credentials at %q are empty", credentialsPath), nil)
	}
	if batchSize < 1 {
		batchSize = 1
	}

	client := resty.New().
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json")

	return &SheetSink{
		client: client,
		appendURL: fmt.Sprintf("%s/values/%s:append?valueInputOption=RAW",
			strings.TrimRight(sheetURL, "/"), url.PathEscape(sheetName)),
		batchSize: batchSize,
	}, nil
}

func (s *SheetSink) Kind() models.SinkKind {
	return models.SinkSheet
}

// Submit buffers one row and drains the buffer once it reaches the batch
// size. When the drain fails transiently the triggering row is withdrawn so
// a dispatcher retry re-appends it exactly once.
func (s *SheetSink) Submit(ctx context.Context, rec models.ListingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, rowFor(rec, time.Now().UTC()))
	if len(s.buf) < s.batchSize {
		return nil
	}
	if err := s.flushLocked(ctx); err != nil {
		if models.IsTransient(err) && len(s.buf) > 0 {
			s.buf = s.buf[:len(s.buf)-1]
		}
		return err
	}
	return nil
}

// Flush drains whatever is buffered. Called at end of run or between
// dispatcher retries.
func (s *SheetSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// flushLocked appends all buffered rows in one call. The buffer is cleared
// on success, and also on a reject — retrying rows the API refused cannot
// succeed and would poison every later batch. Transient failures keep the
// buffer for a retry.
func (s *SheetSink) flushLocked(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"values": s.buf}).
		Post(s.appendURL)
	if err != nil {
		return models.NewRunError(models.ErrCodeSubmitTransient, "sheet append request failed", err)
	}

	code := resp.StatusCode()
	switch {
	case code < 400:
		s.buf = s.buf[:0]
		return nil
	case code == 429 || code >= 500:
		return models.NewRunError(models.ErrCodeSubmitTransient,
			fmt.Sprintf("sheet append returned status %d", code), nil)
	default:
		dropped := len(s.buf)
		s.buf = s.buf[:0]
		return models.NewRunError(models.ErrCodeSubmitRejected,
			fmt.Sprintf("sheet append rejected with status %d (%d rows dropped)", code, dropped), nil)
	}
}

// rowFor renders one record as a sheet row: timestamp, date, address,
// price, link.
func rowFor(rec models.ListingRecord, now time.Time) []string {
	timestamp := fmt.Sprintf("%d/%d/%d %d:%02d:%02d",
		now.Month(), now.Day(), now.Year(), now.Hour(), now.Minute(), now.Second())
	return []string{
		timestamp,
		now.Format("2006-01-02"),
		rec.Address,
		rec.Price,
		rec.DetailLink,
	}
}
