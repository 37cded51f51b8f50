package port

// StateStore is a durable key-value record surviving process restarts. No
// atomicity across keys is assumed or required.
type StateStore interface {
	// Write stores value under key, replacing any previous value.
	Write(key string, value []byte) error

	// Read returns the value for key. The boolean reports whether the key
	// was present.
	Read(key string) ([]byte, bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}
