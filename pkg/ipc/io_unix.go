//go:build unix

package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/cfnet-project/cfnet-go/pkg/wire"
)

// oobSpace is the control buffer for exactly one descriptor.
var oobSpace = unix.CmsgSpace(wire.HandleSize)

// sendFrame performs one sendmsg(2) carrying the frame buffers and rights.
func sendFrame(conn *net.UnixConn, f *wire.Frame) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("raw conn: %w", err)
	}

	var (
		n       int
		sendErr error
	)
	if err := raw.Control(func(fd uintptr) {
		n, sendErr = unix.SendmsgBuffers(int(fd), f.Buffers(), f.Rights, nil, 0)
	}); err != nil {
		return 0, fmt.Errorf("control: %w", err)
	}
	if sendErr != nil {
		if errors.Is(sendErr, unix.EAGAIN) {
			return 0, fmt.Errorf("%w: sendmsg: %w", ErrNotReady, sendErr)
		}
		return 0, fmt.Errorf("sendmsg: %w", sendErr)
	}
	return n, nil
}

// recvFrame performs one recvmsg(2) into bufs. Received descriptors are
// marked close-on-exec and returned as files, also when an error is
// returned, so the caller can reclaim them.
func recvFrame(conn *net.UnixConn, bufs [][]byte) (int, []*os.File, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, nil, fmt.Errorf("raw conn: %w", err)
	}

	oob := make([]byte, oobSpace)
	var (
		n, oobn, flags int
		recvErr        error
	)
	if err := raw.Control(func(fd uintptr) {
		n, oobn, flags, _, recvErr = unix.RecvmsgBuffers(int(fd), bufs, oob, 0)
	}); err != nil {
		return 0, nil, fmt.Errorf("control: %w", err)
	}
	if recvErr != nil {
		if errors.Is(recvErr, unix.EAGAIN) {
			return 0, nil, fmt.Errorf("%w: recvmsg: %w", ErrNotReady, recvErr)
		}
		return 0, nil, fmt.Errorf("recvmsg: %w", recvErr)
	}

	files, err := parseRights(oob[:oobn])
	if err != nil {
		return n, files, err
	}
	if flags&unix.MSG_CTRUNC != 0 {
		return n, files, fmt.Errorf("%w: control data truncated", ErrAncillaryMismatch)
	}
	return n, files, nil
}

// parseRights extracts SCM_RIGHTS descriptors from control data.
func parseRights(oob []byte) ([]*os.File, error) {
	if len(oob) == 0 {
		return nil, nil
	}

	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAncillaryMismatch, err)
	}

	var files []*os.File
	for i := range msgs {
		if msgs[i].Header.Level != unix.SOL_SOCKET || msgs[i].Header.Type != unix.SCM_RIGHTS {
			return files, fmt.Errorf("%w: control message level %d type %d",
				ErrAncillaryMismatch, msgs[i].Header.Level, msgs[i].Header.Type)
		}
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			return files, fmt.Errorf("%w: %w", ErrAncillaryMismatch, err)
		}
		for _, fd := range fds {
			unix.CloseOnExec(fd)
			files = append(files, os.NewFile(uintptr(fd), "cfnet-shared"))
		}
	}
	return files, nil
}
