package queue

import "encoding/json"

// Message is the work item handed to downstream queue consumers. FileKey
// addresses the transient report copy and is distinct from AnalysisID.
type Message struct {
	AnalysisID string `json:"analysisId"`
	TaskID     string `json:"taskId"`
	FileKey    string `json:"fileKey"`
	Query      string `json:"query"`
	FileSize   int64  `json:"fileSize"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
