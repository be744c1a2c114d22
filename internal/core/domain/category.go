package domain

import "fmt"

// Category selects which event kinds a stream carries.
type Category string

const (
	CategoryAll           Category = "all"
	CategoryJobs          Category = "jobs"
	CategoryBids          Category = "bids"
	CategoryCompletions   Category = "completions"
	CategoryCancellations Category = "cancellations"
	CategoryReputation    Category = "reputation"
)

var categoryKinds = map[Category]Kind{
	CategoryJobs:          KindJobPosted,
	CategoryBids:          KindBidPlaced,
	CategoryCompletions:   KindJobCompleted,
	CategoryCancellations: KindJobCancelled,
	CategoryReputation:    KindReputationUpdated,
}

// Categories returns the single-kind categories in kind order.
func Categories() []Category {
	return []Category{
		CategoryJobs,
		CategoryBids,
		CategoryCompletions,
		CategoryCancellations,
		CategoryReputation,
	}
}

// ParseCategory validates a category selector. The empty string selects all kinds.
func ParseCategory(s string) (Category, error) {
	if s == "" || Category(s) == CategoryAll {
		return CategoryAll, nil
	}
	c := Category(s)
	if _, ok := categoryKinds[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Kinds returns the event kinds carried by the category.
func (c Category) Kinds() []Kind {
	if c == CategoryAll {
		return AllKinds()
	}
	if k, ok := categoryKinds[c]; ok {
		return []Kind{k}
	}
	return nil
}

// Includes reports whether events of kind k belong to the category.
func (c Category) Includes(k Kind) bool {
	if c == CategoryAll {
		return k.Valid()
	}
	return categoryKinds[c] == k
}

// CategoryOf maps a kind back to its single-kind category.
func CategoryOf(k Kind) Category {
	for c, kind := range categoryKinds {
		if kind == k {
			return c
		}
	}
	return ""
}
