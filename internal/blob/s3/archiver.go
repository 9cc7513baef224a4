package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// SettlementArchiver writes an immutable record of a resolved market to
// object storage: the final market snapshot followed by every stake and every
// claim, as newline-delimited JSON. The archive is written once, after
// resolution; claims recorded later are appended by re-archiving.
type SettlementArchiver struct {
	writer domain.BlobWriter
	stakes domain.StakeStore
	claims domain.ClaimStore
	audit  domain.AuditStore
	prefix string
}

// NewSettlementArchiver creates a SettlementArchiver. prefix is the key
// prefix under which archives are stored, e.g. "settlements".
func NewSettlementArchiver(
	writer domain.BlobWriter,
	stakes domain.StakeStore,
	claims domain.ClaimStore,
	audit domain.AuditStore,
	prefix string,
) *SettlementArchiver {
	if prefix == "" {
		prefix = "settlements"
	}
	return &SettlementArchiver{
		writer: writer,
		stakes: stakes,
		claims: claims,
		audit:  audit,
		prefix: prefix,
	}
}

// archiveLine wraps each record with a kind tag so the JSONL file is
// self-describing.
type archiveLine struct {
	Kind   string `json:"kind"` // "market", "stake", or "claim"
	Record any    `json:"record"`
}

// ArchiveMarket serializes the market with its stakes and claims to JSONL and
// uploads the file at {prefix}/market-{id}.jsonl. The archival event is
// recorded in the audit log and the number of lines written is returned.
func (a *SettlementArchiver) ArchiveMarket(ctx context.Context, market domain.Market) (int64, error) {
	stakes, err := a.stakes.ListByMarket(ctx, market.ID)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive market %d stakes: %w", market.ID, err)
	}
	claims, err := a.claims.ListByMarket(ctx, market.ID)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive market %d claims: %w", market.ID, err)
	}

	lines := make([]archiveLine, 0, 1+len(stakes)+len(claims))
	lines = append(lines, archiveLine{Kind: "market", Record: market})
	for _, st := range stakes {
		lines = append(lines, archiveLine{Kind: "stake", Record: st})
	}
	for _, c := range claims {
		lines = append(lines, archiveLine{Kind: "claim", Record: c})
	}

	buf, err := marshalJSONL(lines)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive market %d marshal: %w", market.ID, err)
	}

	path := a.archivePath(market.ID)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive market %d upload: %w", market.ID, err)
	}

	count := int64(len(lines))

	if err := a.audit.Log(ctx, "archive.settlement", map[string]any{
		"path":      path,
		"market_id": market.ID,
		"count":     count,
		"at":        time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive market %d audit log: %w", market.ID, err)
	}

	return count, nil
}

// archivePath builds the S3 key for a market's settlement archive.
//
//	settlements/market-42.jsonl
func (a *SettlementArchiver) archivePath(marketID int64) string {
	return fmt.Sprintf("%s/market-%d.jsonl", a.prefix, marketID)
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
