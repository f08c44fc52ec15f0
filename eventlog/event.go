package eventlog

// MaxEventSize bounds the encoded size of a single event, mirroring
// PBLOG_MAX_EVENT_SIZE in the original implementation.
const MaxEventSize = 4096

// EventType classifies an Event's payload. LogCleared is the marker this
// package appends on first-time init and after every Clear; BootUp,
// Shutdown, and Custom are supplemented from the original's intended use
// as general boot-lifecycle telemetry.
type EventType uint32

const (
	EventBootUp EventType = iota
	EventShutdown
	EventLogCleared
	EventCustom
)

func (t EventType) String() string {
	switch t {
	case EventBootUp:
		return "boot_up"
	case EventShutdown:
		return "shutdown"
	case EventLogCleared:
		return "log_cleared"
	case EventCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// KV is one key/value pair attached to an event's Data field, mirroring
// event_add_kv_data in the original.
type KV struct {
	Key   string
	Value string
}

// Event is the structured payload an eventlog.Log stores. BootNumber and
// Timestamp are optional: nil means the field was never stamped, a
// pointer (even to 0) means it was. Add stamps both when they're nil and
// the corresponding hook was configured on the Log.
type Event struct {
	Type       EventType
	BootNumber *uint32
	Timestamp  *uint32
	Data       []KV
}

func uint32ptr(v uint32) *uint32 { return &v }
