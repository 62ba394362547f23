// Package gatewayjson is the JSON codec used for gateway frames, REST bodies and
// mirrored events.
package gatewayjson

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type RawMessage = jsoniter.RawMessage

func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// GetString returns the string at path inside data, or "" when data is not an
// object or the key is missing.
func GetString(data []byte, path ...interface{}) string {
	value := json.Get(data, path...)
	if value.LastError() != nil {
		return ""
	}

	return value.ToString()
}

// GetBool returns the boolean value of data at path. A bare JSON boolean is read
// when no path is given.
func GetBool(data []byte, path ...interface{}) bool {
	value := json.Get(data, path...)
	if value.LastError() != nil {
		return false
	}

	return value.ToBool()
}
