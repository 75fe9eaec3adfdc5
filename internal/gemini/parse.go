package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edgard/uptimebot/internal/ledger"
)

var topicInText = regexp.MustCompile(`id:\s*(\d+)`)

// wireExtraction is the JSON shape returned by the model. Field types are
// lenient because the model does not always honor the schema.
type wireExtraction struct {
	Phone       flexString `json:"phone"`
	Started     flexBool   `json:"started"`
	Stopped     flexBool   `json:"stopped"`
	StartedTime flexString `json:"started_time"`
	StoppedTime flexString `json:"stopped_time"`
	TopicID     flexInt    `json:"topic_id"`

	// Older single-event shape: {"event": "started", "event_time": "12:30"}.
	Event     flexString `json:"event"`
	EventTime flexString `json:"event_time"`
}

func (w wireExtraction) raw() ledger.RawExtraction {
	out := ledger.RawExtraction{
		Phone:       ledger.PhoneID(w.Phone),
		Started:     bool(w.Started),
		Stopped:     bool(w.Stopped),
		StartedTime: string(w.StartedTime),
		StoppedTime: string(w.StoppedTime),
		TopicID:     int64(w.TopicID),
	}
	switch strings.ToLower(strings.TrimSpace(string(w.Event))) {
	case "started":
		out.Started = true
		if out.StartedTime == "" {
			out.StartedTime = string(w.EventTime)
		}
	case "stopped":
		out.Stopped = true
		if out.StoppedTime == "" {
			out.StoppedTime = string(w.EventTime)
		}
	}
	return out
}

// ParseResponse extracts exactly one extraction from a model reply. Code fences
// and surrounding prose are ignored; an array of records is merged into one.
// The topic falls back to an "id: N" marker in text, then to defaultTopic.
func ParseResponse(reply, text string, defaultTopic int64) (ledger.RawExtraction, error) {
	payload, err := extractJSON(reply)
	if err != nil {
		return ledger.RawExtraction{}, err
	}

	var records []wireExtraction
	if payload[0] == '[' {
		if err := json.Unmarshal(payload, &records); err != nil {
			return ledger.RawExtraction{}, fmt.Errorf("invalid extraction array: %w", err)
		}
	} else {
		var one wireExtraction
		if err := json.Unmarshal(payload, &one); err != nil {
			return ledger.RawExtraction{}, fmt.Errorf("invalid extraction object: %w", err)
		}
		records = []wireExtraction{one}
	}

	raws := make([]ledger.RawExtraction, 0, len(records))
	for _, r := range records {
		raws = append(raws, r.raw())
	}
	out := Merge(raws).Normalize()

	if out.TopicID == 0 {
		out.TopicID = topicFromText(text, defaultTopic)
	}
	return out, nil
}

// Merge folds several extractions into one: the first non-empty phone, times
// and topic win and the flags are combined.
func Merge(records []ledger.RawExtraction) ledger.RawExtraction {
	var out ledger.RawExtraction
	for _, r := range records {
		if out.Phone == "" {
			out.Phone = r.Phone
		}
		if r.Started {
			out.Started = true
			if out.StartedTime == "" {
				out.StartedTime = r.StartedTime
			}
		}
		if r.Stopped {
			out.Stopped = true
			if out.StoppedTime == "" {
				out.StoppedTime = r.StoppedTime
			}
		}
		if out.TopicID == 0 {
			out.TopicID = r.TopicID
		}
	}
	return out
}

func topicFromText(text string, defaultTopic int64) int64 {
	if m := topicInText.FindStringSubmatch(text); m != nil {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return defaultTopic
}

// extractJSON returns the first balanced JSON object or array in s.
func extractJSON(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, ErrNoJSON
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return []byte(s[start : i+1]), nil
			}
		}
	}
	return nil, ErrNoJSON
}

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.EqualFold(s, "null") {
			s = ""
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	// Numbers and booleans are kept verbatim.
	*f = flexString(b)
	return nil
}

type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch strings.Trim(strings.ToLower(string(b)), `"`) {
	case "true", "1", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}
