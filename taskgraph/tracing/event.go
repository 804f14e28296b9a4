// Package tracing implements the device tracing ring buffer and the
// host-side persisted tracing file format the scheduler writes to. Event
// tags and the record layout are transcribed from the original
// implementation's host-tracing module, which the distilled spec only
// mentions in passing.
package tracing

// Tag identifies the kind of scheduling boundary an Event marks.
type Tag uint32

const (
	Calibration Tag = iota
	NodeStart
	NodeFinish
	BlockStart
	BlockWait
	BlockExit
)

func (t Tag) String() string {
	switch t {
	case Calibration:
		return "calibration"
	case NodeStart:
		return "nodeStart"
	case NodeFinish:
		return "nodeFinish"
	case BlockStart:
		return "blockStart"
	case BlockWait:
		return "blockWait"
	case BlockExit:
		return "blockExit"
	default:
		return "unknown"
	}
}

// Event is one bounded trace record: the tag, the node's funcID, two
// tag-dependent payload fields (an offset/count pair in practice), the
// node index, and the timestamp it was logged at.
type Event struct {
	Tag       Tag
	FuncID    uint32
	A         uint32
	B         uint32
	NodeIdx   uint32
	Timestamp int64
}
