package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Identifier is a user or conversation ID sent as a JSON string, number or
// boolean. Null, false, the empty string and zero all decode to "", which
// the handler treats as missing.
type Identifier string

// UnmarshalJSON implements json.Unmarshaler.
func (id *Identifier) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*id = ""
		return nil
	case bytes.Equal(data, []byte("true")):
		*id = "true"
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = Identifier(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		if f, err := n.Float64(); err == nil && f == 0 {
			*id = ""
			return nil
		}
		*id = Identifier(n.String())
		return nil
	default:
		return fmt.Errorf("identifier must be a string, number or boolean, got %s", data)
	}
}

// logConversationRequest is the body of POST /log-conversation.
type logConversationRequest struct {
	ConversationHistory *string         `json:"conversation_history"`
	SessionSummary      *string         `json:"session_summary"`
	Timestamp           json.RawMessage `json:"timestamp"`
	UserReadiness       json.RawMessage `json:"user_readiness"`
	UserID              Identifier      `json:"user_id"`
	ConversationID      Identifier      `json:"conversation_id"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp reads a conversation end time given as an RFC 3339 string,
// a plain date or date-time string, or a number of epoch milliseconds. The
// second result is false when the value is absent or not a recognizable time.
func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false
		}
		s = strings.TrimSpace(s)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		// Numeric strings are epoch milliseconds as well.
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
		return time.Time{}, false
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, false
	}
	ms, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return time.Time{}, false
		}
		ms = int64(f)
	}
	return time.UnixMilli(ms).UTC(), true
}
