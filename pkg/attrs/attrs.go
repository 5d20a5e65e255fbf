// Package attrs reads values back out of slog-style argument lists.
package attrs

import "log/slog"

// String returns the string value logged under key in args, which may mix
// alternating key/value pairs and slog.Attr values the way slog accepts them.
// A missing key or a non-string value yields "".
func String(args []any, key string) string {
	for i := 0; i < len(args); i++ {
		switch a := args[i].(type) {
		case slog.Attr:
			if a.Key == key && a.Value.Kind() == slog.KindString {
				return a.Value.String()
			}
		case string:
			if i+1 >= len(args) {
				return ""
			}
			if a == key {
				v, _ := args[i+1].(string)
				return v
			}
			i++
		}
	}
	return ""
}
