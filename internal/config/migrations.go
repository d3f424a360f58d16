package config

import (
	"bytes"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/sigloop/internal/migrate"
)

func init() {
	migrate.Config.Register(migrate.Migration{
		Version:     2,
		Description: "millisecond integers to duration strings",
		Upgrade:     upgradeDurations,
	})
}

// v1Durations maps each v1 millisecond key to its v2 duration key, per table.
var v1Durations = map[string][][2]string{
	"loop":  {{"period_ms", "period"}, {"timeout_ms", "timeout"}},
	"work":  {{"request_timeout_ms", "request_timeout"}},
	"watch": {{"poll_interval_ms", "poll_interval"}},
}

// upgradeDurations rewrites v1 "*_ms" integer keys as duration strings and
// stamps version 2. Comments are not preserved.
func upgradeDurations(data []byte) ([]byte, error) {
	doc := map[string]any{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse v1 config: %w", err)
	}
	for table, keys := range v1Durations {
		t, ok := doc[table].(map[string]any)
		if !ok {
			continue
		}
		for _, k := range keys {
			raw, ok := t[k[0]]
			if !ok {
				continue
			}
			ms, ok := raw.(int64)
			if !ok {
				return nil, fmt.Errorf("%s.%s: want integer milliseconds, got %T", table, k[0], raw)
			}
			delete(t, k[0])
			t[k[1]] = (time.Duration(ms) * time.Millisecond).String()
		}
	}
	doc["version"] = int64(2)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("encode v2 config: %w", err)
	}
	return buf.Bytes(), nil
}
