package ringpool

// View is the caller-visible handle returned by Receiver.Borrow. It is
// valid until the matching Receiver.Release call; the pool guarantees
// the underlying buffer is not overwritten while the borrow it
// represents is outstanding (modulo the documented conflation tear
// window, see Sender.Publish).
//
// Double-releasing a View, or releasing one on a Receiver other than
// the one that produced it, is a contract violation and is not
// detected: Release only floors the borrow count at zero.
type View struct {
	Data      []byte
	Timestamp uint64

	index int
}

// Stats is a point-in-time snapshot of a pool returned by Sender.Stats.
type Stats struct {
	NumSegments      int
	NumReceivers     int
	ConflationsTotal uint64
}
