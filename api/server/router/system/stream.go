package system

import "encoding/json"

// decodeJSONFilters parses the Engine API's `filters` query value, which
// clients send as a JSON object mapping each filter key to an array of
// acceptable values.
func decodeJSONFilters(raw string, out *map[string][]string) error {
	return json.Unmarshal([]byte(raw), out)
}
