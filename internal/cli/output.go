package cli

import (
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"
	"time"

	"github.com/vietddude/gigwatch/internal/core/domain"
)

func printEvents(out io.Writer, events []domain.DomainEvent) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "OBSERVED\tBLOCK\tTYPE\tSOURCE\tTX\tDETAILS")
	for _, ev := range events {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			time.UnixMilli(ev.ObservedAt).UTC().Format(time.RFC3339),
			ev.BlockNumber,
			ev.Kind,
			ev.Source,
			shortHash(ev.TransactionHash),
			summary(ev),
		)
	}
	_ = w.Flush()
}

func summary(ev domain.DomainEvent) string {
	switch p := ev.Payload.(type) {
	case domain.JobPosted:
		return fmt.Sprintf("job %d %q reward=%s by %s", p.JobID, p.Title, amount(p.Reward), shortHash(p.Employer))
	case domain.BidPlaced:
		return fmt.Sprintf("job %d bid=%s by %s", p.JobID, amount(p.Amount), shortHash(p.Worker))
	case domain.JobCompleted:
		return fmt.Sprintf("job %d worker %s", p.JobID, shortHash(p.Worker))
	case domain.JobCancelled:
		return fmt.Sprintf("job %d", p.JobID)
	case domain.ReputationUpdated:
		return fmt.Sprintf("%s score=%s", shortHash(p.User), amount(p.Score))
	}
	return ""
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:8] + ".." + h[len(h)-4:]
}
