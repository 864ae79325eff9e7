package mq

import (
	"encoding/json"
	"time"
)

// CommandType identifies a command sent over the broker.
type CommandType string

const (
	CommandDayView           CommandType = "DayView"
	CommandHeartbeat         CommandType = "Heartbeat"
	CommandLeave             CommandType = "Leave"
	CommandCreateBooking     CommandType = "CreateBooking"
	CommandTransitionBooking CommandType = "TransitionBooking"
	CommandGetBooking        CommandType = "GetBooking"
)

// CommandEnvelope wraps every command with its type tag.
type CommandEnvelope struct {
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Request payloads.

type DayViewPayload struct {
	ResourceID string `json:"resourceId"`
	Date       string `json:"date"`
}

type HeartbeatPayload struct {
	ResourceID string          `json:"resourceId"`
	UserID     string          `json:"userId"`
	Slots      []time.Time     `json:"slots"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type LeavePayload struct {
	ResourceID string      `json:"resourceId"`
	UserID     string      `json:"userId"`
	Slots      []time.Time `json:"slots"`
}

type CreateBookingPayload struct {
	ResourceID     string    `json:"resourceId"`
	EventTypeID    string    `json:"eventTypeId"`
	OrganizationID string    `json:"organizationId"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Timezone       string    `json:"timezone"`
	BookerName     string    `json:"bookerName"`
	BookerEmail    string    `json:"bookerEmail"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	AutoConfirm    bool      `json:"autoConfirm"`
}

type TransitionBookingPayload struct {
	UID    string  `json:"uid"`
	To     string  `json:"to"`
	Actor  string  `json:"actor"`
	Reason *string `json:"reason,omitempty"`
}

type GetBookingPayload struct {
	UID string `json:"uid"`
}

// Response is the generic reply envelope.
type Response struct {
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
