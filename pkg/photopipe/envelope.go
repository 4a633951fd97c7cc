package photopipe

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// Messages can arrive double-wrapped: a queue envelope containing a topic
// notification containing the storage event. Each unwrap layer below is a
// separate function returning a typed result or a decode error;
// DecodeUploadEvents composes them.

// topicEnvelope is the notification JSON a topic writes into a subscribed
// queue. Attribute values arrive as {Type, Value} pairs.
type topicEnvelope struct {
	Type              string `json:"Type"`
	MessageID         string `json:"MessageId"`
	TopicArn          string `json:"TopicArn"`
	Message           string `json:"Message"`
	MessageAttributes map[string]struct {
		Type  string `json:"Type"`
		Value string `json:"Value"`
	} `json:"MessageAttributes"`
}

// DecodeObjectKey decodes a raw object-store key: "+" becomes a space,
// then percent-escapes are resolved. The decoded key is the canonical
// fileName used everywhere downstream.
func DecodeObjectKey(raw string) (string, error) {
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", &DecodeError{Layer: "key", Err: err}
	}
	return key, nil
}

// UnwrapQueueEnvelope peels a queue event wrapper ({"Records": [{"body":
// ...}]}) and returns the inner bodies. A payload that is not a queue
// envelope is returned unchanged as a single body.
func UnwrapQueueEnvelope(raw []byte) ([][]byte, error) {
	var event events.SQSEvent
	if err := json.Unmarshal(raw, &event); err != nil || len(event.Records) == 0 {
		return [][]byte{raw}, nil
	}
	bodies := make([][]byte, 0, len(event.Records))
	for _, rec := range event.Records {
		if rec.Body == "" {
			// Records without a body belong to some other event shape.
			return [][]byte{raw}, nil
		}
		bodies = append(bodies, []byte(rec.Body))
	}
	return bodies, nil
}

// UnwrapTopicEnvelope peels a topic notification, returning the inner
// message and the flattened string attributes. ok is false when the
// payload is not a topic envelope.
func UnwrapTopicEnvelope(raw []byte) (msg []byte, attrs map[string]string, ok bool) {
	var env topicEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw, nil, false
	}
	if env.Type != "Notification" || env.Message == "" {
		return raw, nil, false
	}
	if len(env.MessageAttributes) > 0 {
		attrs = make(map[string]string, len(env.MessageAttributes))
		for name, attr := range env.MessageAttributes {
			attrs[name] = attr.Value
		}
	}
	return []byte(env.Message), attrs, true
}

// ParseStorageEvents parses an object-store notification into upload
// events, decoding each object key.
func ParseStorageEvents(raw []byte) ([]UploadEvent, error) {
	var event events.S3Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, &DecodeError{Layer: "storage", Err: err}
	}
	if len(event.Records) == 0 {
		return nil, &DecodeError{Layer: "storage", Err: fmt.Errorf("no records: %w", ErrMalformedMessage)}
	}

	out := make([]UploadEvent, 0, len(event.Records))
	for _, rec := range event.Records {
		key, err := DecodeObjectKey(rec.S3.Object.Key)
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, &DecodeError{Layer: "storage", Err: ErrEmptyKey}
		}
		eventType := EventObjectCreated
		if strings.Contains(rec.EventName, "ObjectRemoved") {
			eventType = EventObjectRemoved
		}
		out = append(out, UploadEvent{
			Bucket:    rec.S3.Bucket.Name,
			Key:       key,
			EventType: eventType,
		})
	}
	return out, nil
}

// DecodeUploadEvents unwraps up to two envelope layers and parses the
// payload as either a storage notification or an already-routed
// UploadEvent.
func DecodeUploadEvents(raw []byte) ([]UploadEvent, error) {
	bodies, err := UnwrapQueueEnvelope(raw)
	if err != nil {
		return nil, err
	}

	var out []UploadEvent
	for _, body := range bodies {
		if msg, _, ok := UnwrapTopicEnvelope(body); ok {
			body = msg
		}
		if hasRecords(body) {
			evs, err := ParseStorageEvents(body)
			if err != nil {
				return nil, err
			}
			out = append(out, evs...)
			continue
		}

		var ev UploadEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, &DecodeError{Layer: "event", Err: err}
		}
		if ev.Key == "" {
			return nil, &DecodeError{Layer: "event", Err: fmt.Errorf("missing key: %w", ErrMalformedMessage)}
		}
		if ev.EventType == "" {
			ev.EventType = EventObjectCreated
		}
		out = append(out, ev)
	}
	return out, nil
}

func hasRecords(raw []byte) bool {
	var probe struct {
		Records []json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return len(probe.Records) > 0
}
