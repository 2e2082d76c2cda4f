package domain

import "strings"

type OrderStatus int

const (
	StatusUnknown    OrderStatus = 0
	StatusPending    OrderStatus = 1
	StatusProcessing OrderStatus = 2
	StatusCompleted  OrderStatus = 3
	StatusCancelled  OrderStatus = 4
)

var statusNames = map[OrderStatus]string{
	StatusPending:    "Pending",
	StatusProcessing: "Processing",
	StatusCompleted:  "Completed",
	StatusCancelled:  "Cancelled",
}

func (s OrderStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseStatus maps a backend status name to its value, ignoring case.
func ParseStatus(name string) OrderStatus {
	for status, n := range statusNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return status
		}
	}
	return StatusUnknown
}

func StatusFromID(id int) OrderStatus {
	s := OrderStatus(id)
	if _, ok := statusNames[s]; ok {
		return s
	}
	return StatusUnknown
}

type Command string

const (
	CommandConfirm  Command = "confirm"
	CommandComplete Command = "complete"
	CommandCancel   Command = "cancel"
)

type edge struct {
	from []OrderStatus
	to   OrderStatus
}

var transitions = map[Command]edge{
	CommandConfirm:  {from: []OrderStatus{StatusPending}, to: StatusProcessing},
	CommandComplete: {from: []OrderStatus{StatusProcessing}, to: StatusCompleted},
	CommandCancel:   {from: []OrderStatus{StatusPending, StatusProcessing}, to: StatusCancelled},
}

func ParseCommand(s string) (Command, bool) {
	c := Command(strings.ToLower(s))
	_, ok := transitions[c]
	return c, ok
}

// Transition returns the status cmd moves an order in status from to, and
// false when the edge is not defined.
func Transition(cmd Command, from OrderStatus) (OrderStatus, bool) {
	e, ok := transitions[cmd]
	if !ok {
		return StatusUnknown, false
	}
	for _, s := range e.from {
		if s == from {
			return e.to, true
		}
	}
	return StatusUnknown, false
}

// Sources lists the statuses cmd is legal from.
func Sources(cmd Command) []OrderStatus {
	e, ok := transitions[cmd]
	if !ok {
		return nil
	}
	out := make([]OrderStatus, len(e.from))
	copy(out, e.from)
	return out
}

func Target(cmd Command) (OrderStatus, bool) {
	e, ok := transitions[cmd]
	return e.to, ok
}
