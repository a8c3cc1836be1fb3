package fleet

import "fmt"

// UnsupportedKeyError is returned when the backend-wide configuration sets a
// key the backend owns, such as the network CIDR.
type UnsupportedKeyError struct {
	Key     string
	Backend string
}

func (e *UnsupportedKeyError) Error() string {
	return fmt.Sprintf("config key %s is not supported by the %s backend", e.Key, e.Backend)
}
