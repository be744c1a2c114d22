package cli

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"github.com/vietddude/gigwatch/internal/core/domain"
)

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		ev   domain.DomainEvent
		want string
	}{
		{
			"job posted",
			domain.DomainEvent{Kind: domain.KindJobPosted, Payload: domain.JobPosted{JobID: 3, Title: "Mow lawn", Reward: big.NewInt(50), Employer: "0xabc"}},
			`job 3 "Mow lawn" reward=50 by 0xabc`,
		},
		{
			"bid with nil amount",
			domain.DomainEvent{Kind: domain.KindBidPlaced, Payload: domain.BidPlaced{JobID: 3, Worker: "0xdef"}},
			"job 3 bid=0 by 0xdef",
		},
		{
			"reputation",
			domain.DomainEvent{Kind: domain.KindReputationUpdated, Payload: domain.ReputationUpdated{User: "0x1", Score: big.NewInt(9)}},
			"0x1 score=9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summary(tt.ev); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPrintEvents(t *testing.T) {
	var buf bytes.Buffer
	printEvents(&buf, []domain.DomainEvent{{
		Kind:            domain.KindJobCancelled,
		TransactionHash: "0x" + strings.Repeat("a", 64),
		BlockNumber:     120,
		Source:          domain.SourceLive,
		Payload:         domain.JobCancelled{JobID: 9},
	}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	if !strings.Contains(lines[1], "0xaaaaaa..aaaa") || !strings.Contains(lines[1], "job 9") {
		t.Errorf("unexpected row %q", lines[1])
	}
}
