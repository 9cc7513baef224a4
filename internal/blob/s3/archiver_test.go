package s3blob

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

type fakeWriter struct {
	path        string
	contentType string
	data        []byte
}

func (f *fakeWriter) Put(_ context.Context, path string, data []byte, contentType string) error {
	f.path = path
	f.contentType = contentType
	f.data = data
	return nil
}

type fakeStakeStore struct {
	stakes []domain.Stake
}

func (f *fakeStakeStore) Upsert(context.Context, domain.Stake) error { return nil }
func (f *fakeStakeStore) Get(context.Context, int64, common.Address, domain.Side) (domain.Stake, error) {
	return domain.Stake{}, domain.ErrNotFound
}
func (f *fakeStakeStore) ListByMarket(context.Context, int64) ([]domain.Stake, error) {
	return f.stakes, nil
}
func (f *fakeStakeStore) ListAll(context.Context) ([]domain.Stake, error) { return f.stakes, nil }

type fakeClaimStore struct {
	claims []domain.Claim
}

func (f *fakeClaimStore) Insert(context.Context, domain.Claim) error { return nil }
func (f *fakeClaimStore) Exists(context.Context, int64, common.Address) (bool, error) {
	return false, nil
}
func (f *fakeClaimStore) ListByMarket(context.Context, int64) ([]domain.Claim, error) {
	return f.claims, nil
}
func (f *fakeClaimStore) ListAll(context.Context) ([]domain.Claim, error) { return f.claims, nil }

type fakeAuditStore struct {
	events []string
}

func (f *fakeAuditStore) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}
func (f *fakeAuditStore) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveMarket(t *testing.T) {
	alice := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	resolvedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	market := domain.Market{
		ID:         42,
		Question:   "Will it rain tomorrow?",
		Deadline:   resolvedAt.Add(-time.Hour),
		Resolved:   true,
		OutcomeYes: true,
		YesPool:    big.NewInt(700_000_000),
		NoPool:     big.NewInt(300_000_000),
		CreatedAt:  resolvedAt.Add(-48 * time.Hour),
		ResolvedAt: &resolvedAt,
	}

	writer := &fakeWriter{}
	stakes := &fakeStakeStore{stakes: []domain.Stake{
		{MarketID: 42, Account: alice, Side: domain.SideYes, Amount: big.NewInt(700_000_000)},
	}}
	claims := &fakeClaimStore{claims: []domain.Claim{
		{MarketID: 42, Account: alice, Payout: big.NewInt(1_000_000_000),
			Fee: big.NewInt(20_000_000), UserShare: big.NewInt(980_000_000), ClaimedAt: resolvedAt},
	}}
	audit := &fakeAuditStore{}

	arch := NewSettlementArchiver(writer, stakes, claims, audit, "settlements")
	count, err := arch.ArchiveMarket(context.Background(), market)
	if err != nil {
		t.Fatalf("ArchiveMarket: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if writer.path != "settlements/market-42.jsonl" {
		t.Errorf("path = %q, want settlements/market-42.jsonl", writer.path)
	}
	if writer.contentType != "application/x-ndjson" {
		t.Errorf("content type = %q", writer.contentType)
	}

	lines := strings.Split(strings.TrimSpace(string(writer.data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("archive has %d lines, want 3", len(lines))
	}
	wantKinds := []string{"market", "stake", "claim"}
	for i, line := range lines {
		var rec struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("line %d not valid JSON: %v", i, err)
		}
		if rec.Kind != wantKinds[i] {
			t.Errorf("line %d kind = %q, want %q", i, rec.Kind, wantKinds[i])
		}
	}

	if len(audit.events) != 1 || audit.events[0] != "archive.settlement" {
		t.Errorf("audit events = %v, want [archive.settlement]", audit.events)
	}
}
