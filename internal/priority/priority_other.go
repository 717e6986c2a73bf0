//go:build !unix

package priority

// Lower is a no-op on platforms without per-thread nice values.
func Lower() error {
	return nil
}
