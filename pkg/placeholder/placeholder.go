// Package placeholder substitutes {{key}} tokens in message content.
package placeholder

import (
	"sort"
	"strings"
)

const (
	tokenOpen  = "{{"
	tokenClose = "}}"
)

// Render replaces every {{key}} whose key is present in data with its value.
// Tokens for keys missing from data are left as they are.
// Keys are applied in sorted order so the output does not depend on map iteration.
func Render(content string, data map[string]string) string {
	if content == "" || len(data) == 0 {
		return content
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		content = strings.ReplaceAll(content, Token(k), data[k])
	}

	return content
}

func Token(key string) string {
	return tokenOpen + key + tokenClose
}

// Merge returns a new map holding base overlaid by each override in order.
func Merge(base map[string]string, overrides ...map[string]string) map[string]string {
	merged := make(map[string]string, len(base))
	for k, v := range base {
		merged[k] = v
	}
	for _, o := range overrides {
		for k, v := range o {
			merged[k] = v
		}
	}
	return merged
}
