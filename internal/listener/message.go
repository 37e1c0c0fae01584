package listener

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QueueMessage is the transport envelope as the queue runtime sees it.
// MessageID and Timestamp are pointers so a missing value can be told apart
// from a zero one. Timestamp is in Unix seconds.
type QueueMessage struct {
	MessageID  *string        `json:"message_id"`
	Timestamp  *int64         `json:"timestamp"`
	Body       string         `json:"body"`
	Headers    map[string]any `json:"headers,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// JobMessage wraps the envelope once the runtime has resolved the job that
// will process it. Target is the [class, method] pair of that job.
type JobMessage struct {
	Original *QueueMessage `json:"original"`
	Target   []string      `json:"target,omitempty"`
}

// Exception describes the error raised by a job.
type Exception struct {
	Class   string `json:"class"`
	Message string `json:"message,omitempty"`
}

func (e *Exception) Error() string {
	if e.Message == "" {
		return e.Class
	}
	return e.Class + ": " + e.Message
}

// Notification is one lifecycle event emitted by the queue runtime. Seen
// events carry the raw envelope in QueueMessage; every other event carries
// the wrapped job in Message.
type Notification struct {
	Event        string        `json:"event"`
	QueueMessage *QueueMessage `json:"queue_message,omitempty"`
	Message      *JobMessage   `json:"message,omitempty"`
	Exception    *Exception    `json:"exception,omitempty"`
}

type snapshot struct {
	Body       json.RawMessage `json:"body"`
	Headers    map[string]any  `json:"headers"`
	Properties map[string]any  `json:"properties"`
}

// content serializes the body, headers and properties of m. A body that is
// not valid JSON is recorded as null.
func content(m *QueueMessage) (string, error) {
	snap := snapshot{
		Body:       json.RawMessage("null"),
		Headers:    m.Headers,
		Properties: m.Properties,
	}
	if body := strings.TrimSpace(m.Body); body != "" && json.Valid([]byte(body)) {
		snap.Body = json.RawMessage(body)
	}
	if snap.Headers == nil {
		snap.Headers = map[string]any{}
	}
	if snap.Properties == nil {
		snap.Properties = map[string]any{}
	}
	out, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return string(out), nil
}

// seenTarget reads the job class out of an envelope body. The class is
// either a [class, method] array or a plain string.
func seenTarget(body string) string {
	var decoded struct {
		Class json.RawMessage `json:"class"`
	}
	if err := json.Unmarshal([]byte(body), &decoded); err != nil || len(decoded.Class) == 0 {
		return ""
	}
	var parts []string
	if err := json.Unmarshal(decoded.Class, &parts); err == nil {
		return strings.Join(parts, "::")
	}
	var name string
	if err := json.Unmarshal(decoded.Class, &name); err == nil {
		return name
	}
	return ""
}

// truncate caps s at n runes to fit the short string columns.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
