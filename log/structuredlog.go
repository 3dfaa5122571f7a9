package log

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// StructuredLog is one telemetry line. Field order is the wire order.
type StructuredLog struct {
	Time     time.Time       `json:"time"`
	Sender   string          `json:"run_id"`
	MsgType  string          `json:"msg_type"`
	MsgJSON  json.RawMessage `json:"json_encoded"`
	Metadata *string         `json:"metadata,omitempty"`
	Elapsed  uint32          `json:"elapsed,omitempty"`
}

// Telemetry renders a run event as one JSON line and logs it under the
// telemetry module. kv may carry "metadata" (any value) and "elapsed"
// (microseconds). The encoded line is returned so callers can forward it.
func Telemetry(code uint8, runID string, msg interface{}, kv ...interface{}) []byte {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		Error(TelemetryModule, "Telemetry: Failed to marshal msg", "err", err)
		return nil
	}

	entry := StructuredLog{
		Sender:  runID,
		Time:    time.Now().UTC(),
		MsgType: strconv.Itoa(int(code)),
		MsgJSON: msgJSON,
	}
	for i := 0; i+1 < len(kv); i += 2 {
		switch kv[i] {
		case "metadata":
			if kv[i+1] != nil {
				meta := fmt.Sprint(kv[i+1])
				entry.Metadata = &meta
			}
		case "elapsed":
			switch v := kv[i+1].(type) {
			case uint32:
				entry.Elapsed = v
			case int:
				entry.Elapsed = uint32(v)
			}
		}
	}

	msgBytes, err := json.Marshal(entry)
	if err != nil {
		Error(TelemetryModule, "Telemetry: Failed to marshal msg", "err", err)
		return nil
	}
	Debug(TelemetryModule, "event", "json", string(msgBytes))
	return msgBytes
}
