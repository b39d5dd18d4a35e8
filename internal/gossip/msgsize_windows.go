//go:build windows

package gossip

import "syscall"

// errMessageTooLong is WSAEMSGSIZE, returned by recvfrom when a datagram did
// not fit the buffer.
const errMessageTooLong = syscall.Errno(10040)
