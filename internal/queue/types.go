package queue

import (
	"encoding/json"
	"errors"
)

// ErrNoMessage is returned when the queue has no visible messages
var ErrNoMessage = errors.New("no messages in queue")

// Task types carried in message bodies
const (
	TaskRunJob = "run_job"
)

// TaskMessage is the body of a queued task
type TaskMessage struct {
	Type  string `json:"type"`
	JobID uint64 `json:"job_id"`
}

// EncodeTask serializes a task message for enqueueing
func EncodeTask(msg TaskMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeTask deserializes a task message body
func DecodeTask(body []byte) (TaskMessage, error) {
	var msg TaskMessage
	err := json.Unmarshal(body, &msg)
	return msg, err
}
