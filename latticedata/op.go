package latticedata

import "github.com/latticehost/hostcore/store"

// Op is the kind of change a lattice bucket entry carries. It aliases the
// store seam's Op so watch events flow into ProcessEntry without
// conversion at every call site.
type Op = store.Op

const (
	OpPut    = store.OpPut
	OpDelete = store.OpDelete
)
