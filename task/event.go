package task

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/near/borsh-go"
)

// Event is the notification emitted by one successful operation.
type Event interface {
	EventName() string
}

// TaskCreated is emitted by Create.
type TaskCreated struct {
	TaskID    string   `json:"task_id"`
	Creator   Identity `json:"creator"`
	Timestamp int64    `json:"timestamp"`
}

// TaskAccepted is emitted by Accept with the new operator.
type TaskAccepted struct {
	Operator  Identity `json:"operator"`
	Timestamp int64    `json:"timestamp"`
}

// TaskCompleted is emitted by Complete with the attested log reference.
type TaskCompleted struct {
	Operator     Identity `json:"operator"`
	LogReference string   `json:"log_reference"`
	Timestamp    int64    `json:"timestamp"`
}

// TaskVerified is emitted by RecordVerification.
type TaskVerified struct {
	TaskID             string   `json:"task_id"`
	Validator          Identity `json:"validator"`
	VerificationResult bool     `json:"verification_result"`
	Timestamp          int64    `json:"timestamp"`
}

func (TaskCreated) EventName() string   { return "TaskCreated" }
func (TaskAccepted) EventName() string  { return "TaskAccepted" }
func (TaskCompleted) EventName() string { return "TaskCompleted" }
func (TaskVerified) EventName() string  { return "TaskVerified" }

// ErrUnknownEvent is returned for payloads with an unrecognized discriminator.
var ErrUnknownEvent = errors.New("unknown event discriminator")

// discriminator namespaces a type name the same way for accounts and events.
// The tags are the Anchor ones, so encoded records and events are readable by
// Anchor clients.
func discriminator(namespace, name string) [8]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

var eventDiscriminators = map[[8]byte]func() Event{
	discriminator("event", "TaskCreated"):   func() Event { return &TaskCreated{} },
	discriminator("event", "TaskAccepted"):  func() Event { return &TaskAccepted{} },
	discriminator("event", "TaskCompleted"): func() Event { return &TaskCompleted{} },
	discriminator("event", "TaskVerified"):  func() Event { return &TaskVerified{} },
}

// MarshalEvent encodes ev as its discriminator followed by its borsh fields.
func MarshalEvent(ev Event) ([]byte, error) {
	var body []byte
	var err error
	switch e := ev.(type) {
	case TaskCreated:
		body, err = borsh.Serialize(e)
	case TaskAccepted:
		body, err = borsh.Serialize(e)
	case TaskCompleted:
		body, err = borsh.Serialize(e)
	case TaskVerified:
		body, err = borsh.Serialize(e)
	default:
		return nil, fmt.Errorf("marshal event %T: %w", ev, ErrUnknownEvent)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.EventName(), err)
	}
	d := discriminator("event", ev.EventName())
	return append(d[:], body...), nil
}

// UnmarshalEvent decodes a payload produced by MarshalEvent. The returned
// Event holds a value, never a pointer.
func UnmarshalEvent(data []byte) (Event, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("event payload is %d bytes: %w", len(data), ErrUnknownEvent)
	}
	var d [8]byte
	copy(d[:], data[:8])
	newEvent, ok := eventDiscriminators[d]
	if !ok {
		return nil, ErrUnknownEvent
	}
	ev := newEvent()
	if err := borsh.Deserialize(ev, data[8:]); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", ev.EventName(), err)
	}
	switch e := ev.(type) {
	case *TaskCreated:
		return *e, nil
	case *TaskAccepted:
		return *e, nil
	case *TaskCompleted:
		return *e, nil
	case *TaskVerified:
		return *e, nil
	}
	return nil, ErrUnknownEvent
}

// IsEventName reports whether name is one of the four event names.
func IsEventName(name string) bool {
	_, ok := eventDiscriminators[discriminator("event", name)]
	return ok
}
