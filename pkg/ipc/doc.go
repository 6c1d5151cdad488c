// Package ipc exchanges wire messages over a connected Unix-domain socket.
//
// A Channel wraps a caller-owned *net.UnixConn. Each Write waits for the
// socket to become writable within the channel timeout, then moves one whole
// message (header, payload slot and, for ShareOwnership, the descriptor as
// SCM_RIGHTS ancillary data) with a single sendmsg(2). Read is symmetric.
// There is no internal retry: a call that finds the socket not ready fails
// with ErrNotReady and the caller decides whether to try again.
//
// Sharing a file:
//
//	msg, _ := wire.NewShareOwnership(f)
//	if _, err := ch.Write(msg); err != nil {
//	    return err
//	}
//
// The receiving process gets its own duplicate of the descriptor and owns it:
//
//	msg, _, err := ch.Read()
//	if err != nil {
//	    return err
//	}
//	defer msg.Close()
//
// Channels never close the socket, not even on Destroy. A Channel is not
// safe for concurrent use.
package ipc
