package testutil

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ErrInjected is the error returned by writes a FaultInjector fails
var ErrInjected = errors.New("injected store failure")

// FaultOp selects the statement kind a FaultInjector intercepts
type FaultOp string

const (
	FaultCreate FaultOp = "create"
	FaultUpdate FaultOp = "update"
	FaultDelete FaultOp = "delete"
)

var injectorSeq atomic.Int64

// FaultInjector fails writes to one table through a GORM callback.
// Writes numbered from FailFrom onwards (1-based, counted per injector)
// return ErrInjected; earlier ones go through.
type FaultInjector struct {
	table    string
	op       FaultOp
	failFrom int

	mu       sync.Mutex
	seen     int
	failed   int
	disabled bool
}

// InjectFaults registers an injector on db that fails the failFrom-th and
// later op statements against table.
func InjectFaults(t *testing.T, db *gorm.DB, table string, op FaultOp, failFrom int) *FaultInjector {
	t.Helper()

	f := &FaultInjector{table: table, op: op, failFrom: failFrom}
	name := fmt.Sprintf("testutil:fault_%s_%s_%d", op, table, injectorSeq.Add(1))

	var err error
	switch op {
	case FaultCreate:
		err = db.Callback().Create().Before("gorm:create").Register(name, f.intercept)
	case FaultUpdate:
		err = db.Callback().Update().Before("gorm:update").Register(name, f.intercept)
	case FaultDelete:
		err = db.Callback().Delete().Before("gorm:delete").Register(name, f.intercept)
	default:
		err = fmt.Errorf("unknown fault op %q", op)
	}
	require.NoError(t, err, "Failed to register fault injector")

	t.Cleanup(f.Disable)
	return f
}

func (f *FaultInjector) intercept(db *gorm.DB) {
	if db.Statement == nil || db.Statement.Table != f.table {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disabled {
		return
	}
	f.seen++
	if f.seen >= f.failFrom {
		f.failed++
		// gorm skips the statement once an error is set
		_ = db.AddError(ErrInjected)
	}
}

// Disable lets every subsequent write through
func (f *FaultInjector) Disable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled = true
}

// Seen returns how many matching writes were intercepted while enabled
func (f *FaultInjector) Seen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen
}

// Failed returns how many writes were failed
func (f *FaultInjector) Failed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}
