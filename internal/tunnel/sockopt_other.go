//go:build !unix

package tunnel

import "syscall"

// reuseAddrControl leaves the platform's listener defaults in place.
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return nil
}
