//go:build !linux

package eventloop

// osThreadID is not available on this platform.
func osThreadID() int {
	return 0
}
