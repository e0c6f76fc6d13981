package idx

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID identifies a single outbound API call. All retries of the same
// logical call share one RequestID so they can be correlated in provider logs.
type RequestID string

var (
	globalOnce sync.Once
	global     *generator
)

// generator hands out ULIDs from a monotonic source. The entropy source is
// not safe for concurrent use, hence the mutex.
type generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (g *generator) newAt(t time.Time) RequestID {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := ulid.MustNew(ulid.Timestamp(t), g.entropy)
	return RequestID(u.String())
}

func initGlobal() {
	global = &generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New returns a lexicographically sortable request ID for the current time.
func New() RequestID {
	return NewAt(time.Now().UTC())
}

// NewAt returns a request ID stamped with t. Mostly useful in tests.
func NewAt(t time.Time) RequestID {
	globalOnce.Do(initGlobal)
	return global.newAt(t.UTC())
}

// String returns the canonical string form.
func (id RequestID) String() string { return string(id) }
