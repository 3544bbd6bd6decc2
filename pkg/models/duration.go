package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that marshals to and from the standard Go
// duration string ("72h", "30m") so definition documents stay readable.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}

		*d = Duration(parsed)

		return nil
	case float64:
		// Plain numbers are nanoseconds, matching time.Duration's zero-config encoding.
		*d = Duration(time.Duration(v))

		return nil
	default:
		return fmt.Errorf("cannot parse %T as duration", raw)
	}
}
