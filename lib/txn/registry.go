package txn

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Goroutine Identity
// --------------------------------------------------------------------------

// goroutineID returns the id of the calling goroutine.
//
// The id is parsed from the first line of the goroutine's stack trace
// ("goroutine 123 [running]:"). The runtime gives no cheaper stable
// identity; the parse costs one small stack dump per call, which the hot
// paths amortize by resolving the id once per executed block.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)

	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		panic(fmt.Sprintf("malformed stack header: %q", buf[:n]))
	}

	id, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		panic(fmt.Sprintf("malformed goroutine id %q: %v", fields[1], err))
	}
	return id
}

// --------------------------------------------------------------------------
// Context Registry
// --------------------------------------------------------------------------

// registry tracks which goroutine executes for which context. Every context
// worker goroutine attaches itself while it runs blocks, so operations can
// verify they are confined to their context and synchronous scheduling can
// detect illegal nesting.
//
// Thread-safety: all methods are safe for concurrent use.
type registry struct {
	contexts *xsync.MapOf[uint64, *Context]
}

func newRegistry() *registry {
	return &registry{
		contexts: xsync.NewMapOf[uint64, *Context](),
	}
}

// attach binds the goroutine to the context.
func (r *registry) attach(gid uint64, ctx *Context) {
	r.contexts.Store(gid, ctx)
}

// detach removes the goroutine's binding.
func (r *registry) detach(gid uint64) {
	r.contexts.Delete(gid)
}

// current returns the context the goroutine is attached to, if any.
func (r *registry) current(gid uint64) (*Context, bool) {
	return r.contexts.Load(gid)
}
