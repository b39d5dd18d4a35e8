//go:build !windows

package gossip

import "syscall"

const errMessageTooLong = syscall.EMSGSIZE
