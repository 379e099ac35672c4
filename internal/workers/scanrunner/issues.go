package scanrunner

import (
	"math/rand/v2"
	"sync"

	"croaudit/internal/domain"
)

// IssueCounter decides how many cosmetic "issues found" a phase adds.
// An error is fatal to the run.
type IssueCounter interface {
	Next(phase domain.ScanPhase) (int, error)
}

// IssueCounterFunc adapts a function to IssueCounter.
type IssueCounterFunc func(phase domain.ScanPhase) (int, error)

func (f IssueCounterFunc) Next(phase domain.ScanPhase) (int, error) { return f(phase) }

// DefaultIssueProbability is the chance a phase reports any issues at all.
const DefaultIssueProbability = 0.5

// RandomIssueCounter adds 1 or 2 issues with probability p per phase.
type RandomIssueCounter struct {
	mu sync.Mutex
	r  *rand.Rand
	p  float64
}

// NewRandomIssueCounter uses src, or a randomly seeded PCG when src is nil.
func NewRandomIssueCounter(src rand.Source, p float64) *RandomIssueCounter {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &RandomIssueCounter{r: rand.New(src), p: p}
}

func (c *RandomIssueCounter) Next(domain.ScanPhase) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r.Float64() >= c.p {
		return 0, nil
	}
	return 1 + c.r.IntN(2), nil
}
