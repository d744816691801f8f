package models

import (
	"encoding/json"
	"strings"
)

func decodeJSON(body string, v any) error {
	return json.NewDecoder(strings.NewReader(body)).Decode(v)
}
