package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/cfnet-project/cfnet-go/pkg/ipc"
	"github.com/cfnet-project/cfnet-go/pkg/wire"
)

// maxShown bounds how much of a shared file is printed.
const maxShown = 4096

func (p *probe) socketAddr() (*net.UnixAddr, error) {
	if p.cfg.IPC.SocketPath == "" {
		return nil, fmt.Errorf("no socket path: set -socket or ipc.socket_path")
	}
	return &net.UnixAddr{Name: p.cfg.IPC.SocketPath, Net: "unix"}, nil
}

func (p *probe) channel(conn *net.UnixConn) (*ipc.Channel, error) {
	return ipc.New(conn,
		ipc.WithTimeout(p.cfg.IPC.Timeout),
		ipc.WithLogger(p.logger),
		ipc.WithProtocolLogger(p.plog))
}

func (p *probe) serveIPC(ctx context.Context) error {
	addr, err := p.socketAddr()
	if err != nil {
		return err
	}
	// A stale socket file from an earlier run blocks the bind.
	os.Remove(addr.Name)

	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	p.logger.Info("listening", "socket", addr.Name)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	seen := 0
	for p.opts.count == 0 || seen < p.opts.count {
		conn, err := ln.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		err = p.serveConn(ctx, conn, &seen)
		conn.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// serveConn prints messages from one peer until it hangs up or the message
// count is reached.
func (p *probe) serveConn(ctx context.Context, conn *net.UnixConn, seen *int) error {
	ch, err := p.channel(conn)
	if err != nil {
		return err
	}
	defer ch.Destroy()

	for p.opts.count == 0 || *seen < p.opts.count {
		if ctx.Err() != nil {
			return nil
		}
		m, _, err := ch.Read()
		switch {
		case errors.Is(err, ipc.ErrNotReady):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
		*seen++
		p.show(m)
	}
	return nil
}

func (p *probe) show(m *wire.Message) {
	defer m.Close()

	switch m.Request() {
	case wire.RequestWriteText:
		fmt.Fprintf(p.out, "text from %d: %q\n", m.Sender(), m.Text())
	case wire.RequestShareOwnership:
		content, err := io.ReadAll(io.NewSectionReader(m.Handle(), 0, maxShown))
		if err != nil {
			p.logger.Warn("read shared file", "error", err)
		}
		fmt.Fprintf(p.out, "file from %d: %q\n", m.Sender(), content)
	}
}

// dial connects to the serving probe and sends one message.
func (p *probe) dial(m *wire.Message) error {
	addr, err := p.socketAddr()
	if err != nil {
		return err
	}
	conn, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := p.channel(conn)
	if err != nil {
		return err
	}
	defer ch.Destroy()

	n, err := ch.Write(m)
	if err != nil {
		return err
	}
	p.logger.Debug("sent", "request", m.Request().String(), "bytes", n)
	return nil
}

func (p *probe) sendIPC(text string) error {
	m, err := wire.NewWriteText(text)
	if err != nil {
		return err
	}
	return p.dial(m)
}

func (p *probe) shareIPC(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := wire.NewShareOwnership(f)
	if err != nil {
		return err
	}
	return p.dial(m)
}
