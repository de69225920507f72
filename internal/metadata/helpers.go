package metadata

import (
	"encoding/json"

	"github.com/jward/doclink/internal/refstore"
)

// marshalLocations converts doc locations to JSON text for storage.
func marshalLocations(locs []refstore.DocLocation) string {
	if len(locs) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(locs)
	return string(b)
}

func unmarshalLocations(s string) ([]refstore.DocLocation, error) {
	if s == "" || s == "null" || s == "[]" {
		return nil, nil
	}
	var locs []refstore.DocLocation
	if err := json.Unmarshal([]byte(s), &locs); err != nil {
		return nil, err
	}
	return locs, nil
}
