//go:build !unix

package ipc

import (
	"errors"
	"net"
	"os"

	"github.com/cfnet-project/cfnet-go/pkg/wire"
)

var errUnsupported = errors.New("ipc: descriptor passing unsupported on this platform")

func sendFrame(*net.UnixConn, *wire.Frame) (int, error) {
	return 0, errUnsupported
}

func recvFrame(*net.UnixConn, [][]byte) (int, []*os.File, error) {
	return 0, nil, errUnsupported
}
