package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bellanapoli/bellad/internal/domain"
)

// marketExport is the cold-storage record for one settled market: the
// off-chain row plus every bet placed on it. Amounts serialize as JSON
// numbers via big.Int.
type marketExport struct {
	Market domain.Market    `json:"market"`
	Bets   []domain.UserBet `json:"bets"`
}

// ArchiveImpl exports settled and cancelled market history to S3 as JSONL.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	markets domain.MarketStore
	bets    domain.BetStore
	audit   domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	markets domain.MarketStore,
	bets domain.BetStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		markets: markets,
		bets:    bets,
		audit:   audit,
	}
}

// terminalStatuses are the statuses after which a market's history stops
// changing and can safely be exported.
var terminalStatuses = []domain.MarketStatus{
	domain.MarketStatusResolved,
	domain.MarketStatusCancelled,
}

// ArchiveMarkets exports every resolved or cancelled market created before
// the cutoff. Each market becomes one JSONL
// line carrying the market row and its full bet list, uploaded to
// archive/markets/YYYY-MM.jsonl. The archival is recorded in the audit log
// and the number of exported markets is returned.
func (a *ArchiveImpl) ArchiveMarkets(ctx context.Context, before time.Time) (int64, error) {
	var exports []marketExport

	for _, status := range terminalStatuses {
		markets, err := a.markets.ListByStatus(ctx, status, domain.ListOpts{Until: &before})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive markets query %s: %w", status, err)
		}

		for _, m := range markets {
			bets, err := a.bets.ListByMarket(ctx, m.ID, domain.ListOpts{})
			if err != nil {
				return 0, fmt.Errorf("s3blob: archive market %s bets: %w", m.ID, err)
			}
			exports = append(exports, marketExport{Market: m, Bets: bets})
		}
	}

	if len(exports) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(exports)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets marshal: %w", err)
	}

	path := archivePath("markets", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive markets upload: %w", err)
	}

	count := int64(len(exports))

	if err := a.audit.Log(ctx, "archive.markets", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive markets audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/markets/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
