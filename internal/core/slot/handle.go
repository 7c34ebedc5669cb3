package slot

// Handle identifies one occupancy of a slot: a 24-bit index and a generation.
// The generation changes whenever the slot is occupied or released, so a handle
// captured before a release never matches the next occupant of the same index.
type Handle struct {
	Index      uint32
	Generation uint32
}

const (
	indexBits      = 24
	generationBits = 28

	// MaxCapacity is the largest table a packed handle can address.
	MaxCapacity = 1 << indexBits

	indexMask      = MaxCapacity - 1
	generationMask = 1<<generationBits - 1
)

// IsZero reports whether h is the zero handle. The zero handle is never valid:
// generations start at 1.
func (h Handle) IsZero() bool { return h.Generation == 0 }

// Pack encodes the handle as generation<<24 | index. The result uses 52 bits and
// survives a round trip through a float64 script number unchanged.
func (h Handle) Pack() uint64 {
	return uint64(h.Generation&generationMask)<<indexBits | uint64(h.Index&indexMask)
}

// Unpack decodes a value produced by Pack. Values outside the 52-bit range decode
// to the zero handle.
func Unpack(id uint64) Handle {
	if id>>(indexBits+generationBits) != 0 {
		return Handle{}
	}
	return Handle{
		Index:      uint32(id & indexMask),
		Generation: uint32(id >> indexBits),
	}
}

// nextGeneration advances a generation counter, wrapping within 28 bits and
// skipping 0.
func nextGeneration(g uint32) uint32 {
	g = (g + 1) & generationMask
	if g == 0 {
		g = 1
	}
	return g
}
