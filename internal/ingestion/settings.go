package ingestion

import "encoding/json"

// jsonQuote/jsonUnquote wrap the Store's raw JSON setting values (spec §6:
// settings are stored as opaque JSON) around a plain Go string
func jsonQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func jsonUnquote(raw string, out *string) error {
	return json.Unmarshal([]byte(raw), out)
}
