package models

import "time"

// Operator → relay frames.
const (
	OperatorMsgURL    = "operator_url"
	OperatorMsgCancel = "cancel_task"
)

// Relay → operator frames.
const (
	RelayMsgStatus     = "status"
	RelayMsgStatusEdit = "status_edit"
	RelayMsgNotice     = "notice"
	RelayMsgDelivered  = "delivered"
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type URLPayload struct {
	Text string `json:"text"`
}

type ButtonPayload struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

type StatusPayload struct {
	StatusID string          `json:"status_id"`
	Text     string          `json:"text"`
	Buttons  []ButtonPayload `json:"buttons,omitempty"`
}

type NoticePayload struct {
	Text  string `json:"text"`
	Alert bool   `json:"alert,omitempty"`
}

type DeliveredPayload struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Video    bool   `json:"video"`
}

type HealthCheck struct {
	Status      string `json:"sys_status"`
	Uptime      int64  `json:"uptime"`
	ActiveTasks int    `json:"active_tasks"`
	ScratchFree uint64 `json:"scratch_free_bytes"`
}

type TaskState struct {
	Identity string `json:"identity"`
	Active   bool   `json:"active"`
}

type TransferRequest struct {
	URL string `json:"url" binding:"required"`
}

type TransferAccepted struct {
	Identity string    `json:"identity"`
	URL      string    `json:"url"`
	Accepted time.Time `json:"accepted_at"`
}

type TransferResult struct {
	Outcome  string `json:"outcome"`
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}
