// Package queue implements the crash-safe file-queue bus shared by channel
// adapters and the dispatcher. Work items, responses, streaming partials and
// cancel signals are all JSON files under sibling directories on one
// filesystem; atomic rename is the only locking primitive.
package queue

// Message is a user-originated work item, written by a channel adapter into
// incoming/ and claimed by the dispatcher via rename into processing/.
type Message struct {
	Channel    string   `json:"channel"`
	Sender     string   `json:"sender"`
	SenderID   string   `json:"senderId,omitempty"`
	Message    string   `json:"message"`
	Timestamp  int64    `json:"timestamp"` // unix ms
	MessageID  string   `json:"messageId"`
	Agent      string   `json:"agent,omitempty"`      // pre-routed agent ID
	Files      []string `json:"files,omitempty"`      // absolute attachment paths
	SessionKey string   `json:"sessionKey,omitempty"` // conversation scope
	RetryCount int      `json:"retryCount,omitempty"`
}

// Response is the final agent output for one message, written once by the
// dispatcher into outgoing/ and deleted by the adapter after delivery.
type Response struct {
	Channel         string   `json:"channel"`
	Sender          string   `json:"sender"`
	Message         string   `json:"message"`
	OriginalMessage string   `json:"originalMessage"`
	Timestamp       int64    `json:"timestamp"`
	MessageID       string   `json:"messageId"`
	Agent           string   `json:"agent,omitempty"`
	Files           []string `json:"files,omitempty"`
}

// StreamingPartial carries live agent output. The same file is overwritten
// as text accumulates, so the partial is always the full text so far.
type StreamingPartial struct {
	Status     string `json:"status"` // always "streaming"
	Channel    string `json:"channel"`
	Sender     string `json:"sender"`
	MessageID  string `json:"messageId"`
	Partial    string `json:"partial"`
	Agent      string `json:"agent,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Cancelable bool   `json:"cancelable,omitempty"`
}

// CancelSignal asks the dispatcher to abort the in-flight invocation for a
// message. Published by the adapter as cancel/<messageId>.json.
type CancelSignal struct {
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}
