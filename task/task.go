// Package task defines the drone task record, its lifecycle operations and the
// guards that authorize them.
package task

import (
	"fmt"
	"strconv"
	"strings"
)

// Status represents the lifecycle state of a task. It is persisted as one byte.
type Status uint8

const (
	StatusCreated Status = iota
	StatusAccepted
	StatusCompleted
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusAccepted, StatusCompleted:
		return true
	default:
		return false
	}
}

// Next returns the only state s may advance to. Completed has no successor.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusCreated:
		return StatusAccepted, true
	case StatusAccepted:
		return StatusCompleted, true
	default:
		return s, false
	}
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusAccepted:
		return "accepted"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus is the inverse of String; unknown names are rejected.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "created":
		return StatusCreated, nil
	case "accepted":
		return StatusAccepted, nil
	case "completed":
		return StatusCompleted, nil
	default:
		return 0, fmt.Errorf("unknown task status %q", s)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown task status tag %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// TaskType describes the kind of flight. Values outside the named set are
// stored unchanged.
type TaskType uint8

const (
	TypeSurveillance TaskType = 0
	TypeDelivery     TaskType = 1
	TypeInspection   TaskType = 2
	TypeMapping      TaskType = 3
	TypePhotography  TaskType = 4
)

var taskTypeNames = map[TaskType]string{
	TypeSurveillance: "surveillance",
	TypeDelivery:     "delivery",
	TypeInspection:   "inspection",
	TypeMapping:      "mapping",
	TypePhotography:  "photography",
}

func (t TaskType) String() string {
	if name, ok := taskTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseTaskType accepts a named type or a raw number in 0-255.
func ParseTaskType(s string) (TaskType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range taskTypeNames {
		if name == s {
			return t, nil
		}
	}
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		return TaskType(n), nil
	}
	return 0, fmt.Errorf("unknown task type %q", s)
}
