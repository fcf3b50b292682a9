package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a wrapper around time.Duration matching the wire format of the
// update API, which sends durations as decimal seconds with an "s" suffix,
// e.g. "300s" or "593.44s".
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	secs := time.Duration(d).Seconds()
	return json.Marshal(strconv.FormatFloat(secs, 'f', -1, 64) + "s")
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value * float64(time.Second)))
		return nil
	case string:
		secs, err := strconv.ParseFloat(strings.TrimSuffix(value, "s"), 64)
		if err != nil {
			return fmt.Errorf("malformed duration %q: %w", value, err)
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	default:
		return fmt.Errorf("malformed duration: unexpected JSON type %T", v)
	}
}
