package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openpredict/marketd/internal/domain"
)

// Archiver writes settlement reports to cold object storage. Each resolved
// market produces one immutable JSON document; the report is written once
// at resolution time and never read on a hot path.
type Archiver struct {
	writer *Writer
}

// NewArchiver creates a new Archiver uploading through writer.
func NewArchiver(writer *Writer) *Archiver {
	return &Archiver{writer: writer}
}

// archivedPosition is the serialized form of one position at resolution.
type archivedPosition struct {
	Holder    string `json:"holder"`
	YesShares string `json:"yes_shares"`
	NoShares  string `json:"no_shares"`
	Claimed   bool   `json:"claimed"`
}

// archivedReport is the serialized settlement report document.
type archivedReport struct {
	MarketID   uint32             `json:"market_id"`
	Question   string             `json:"question"`
	Outcome    string             `json:"outcome"`
	Pool       string             `json:"pool"`
	ResolvedAt string             `json:"resolved_at"`
	Positions  []archivedPosition `json:"positions"`
}

// ArchiveSettlement serializes the report and uploads it to
// settlements/YYYY-MM/market-{id}.json, partitioned by resolution month.
func (a *Archiver) ArchiveSettlement(ctx context.Context, report domain.SettlementReport) error {
	doc := archivedReport{
		MarketID:   report.MarketID,
		Question:   report.Question,
		Outcome:    string(report.Outcome),
		Pool:       report.Pool.String(),
		ResolvedAt: report.ResolvedAt.UTC().Format(time.RFC3339),
		Positions:  make([]archivedPosition, 0, len(report.Positions)),
	}
	for _, pos := range report.Positions {
		doc.Positions = append(doc.Positions, archivedPosition{
			Holder:    pos.Holder.Hex(),
			YesShares: pos.YesShares.String(),
			NoShares:  pos.NoShares.String(),
			Claimed:   pos.Claimed,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("s3blob: marshal settlement report %d: %w", report.MarketID, err)
	}

	path := settlementPath(report.MarketID, report.ResolvedAt)
	if err := a.writer.Put(ctx, path, &buf, "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive settlement %d: %w", report.MarketID, err)
	}
	return nil
}

// settlementPath builds the S3 key for a settlement report, partitioned by
// the year-month of resolution.
//
//	settlements/2026-03/market-7.json
func settlementPath(marketID uint32, resolvedAt time.Time) string {
	return fmt.Sprintf("settlements/%s/market-%d.json", resolvedAt.UTC().Format("2006-01"), marketID)
}
