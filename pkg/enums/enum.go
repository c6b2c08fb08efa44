package enums

import "fmt"

// parse matches value exactly against the allowed set; kind names the enum in
// the error.
func parse[T ~string](allowed []T, value, kind string) (T, error) {
	for _, v := range allowed {
		if string(v) == value {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
