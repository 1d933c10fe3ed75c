// Package memzero wipes key material held in byte slices.
package memzero

import "runtime"

// Zero clears every byte of b. The KeepAlive stops the compiler from
// treating the stores as dead when b is not read again.
func Zero(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}

// ZeroAll clears each of bufs.
func ZeroAll(bufs ...[]byte) {
	for _, b := range bufs {
		Zero(b)
	}
}
