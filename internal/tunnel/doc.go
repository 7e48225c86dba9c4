// Package tunnel implements the multi-port relay core of ssh-relay.
//
// Features:
//   - One Listener per configured port, each with its own accept loop and session registry
//   - A Manager that starts listeners staggered and stops them as a unit
//   - Per-connection Sessions: handshake, secret and destination checks, dial, relay
//   - A Relay that pumps bytes both ways with an idle budget
//   - A Transport seam through which all listening and dialing happens
//
// Usage:
//  1. Build listener configurations (see package config)
//  2. Create a Manager with NewManager and call StartAll, or use Run
//  3. Each accepted connection is handled by a Session in its own goroutine
//  4. StopAll closes every listener and every tracked session
//
// Per-connection failures never leave their Session. Clients only ever see
// the fixed status lines declared in this package.
package tunnel
