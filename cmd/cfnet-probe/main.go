// Command cfnet-probe exercises cfnet channels from the command line.
//
// Usage:
//
//	cfnet-probe [flags] <command> [args]
//
// Commands:
//
//	version          Print the protocol version and ALPN identifiers
//	gencert          Create a self-signed identity in -cert-dir
//	tls-serve        Accept TLS sessions and echo what they send
//	tls-send TEXT    Open a TLS session, send TEXT, print the echo
//	ipc-serve        Accept one local channel and print its messages
//	ipc-send TEXT    Send TEXT over a local channel
//	ipc-share FILE   Hand FILE to the peer of a local channel
//
// Examples:
//
//	# Terminal 1
//	cfnet-probe -socket /tmp/cfnet.sock ipc-serve
//
//	# Terminal 2
//	cfnet-probe -socket /tmp/cfnet.sock ipc-share /etc/hostname
//
//	# Record protocol events for cfnet-log
//	cfnet-probe -protocol-log probe.clog tls-serve
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cfnet-project/cfnet-go/pkg/config"
	"github.com/cfnet-project/cfnet-go/pkg/log"
	"github.com/cfnet-project/cfnet-go/pkg/version"
)

type options struct {
	configFile  string
	address     string
	socket      string
	logLevel    string
	protocolLog string
	certDir     string
	pinFile     string
	insecure    bool
	count       int
}

// probe bundles what every command needs.
type probe struct {
	cfg     *config.Config
	opts    options
	logger  *slog.Logger
	plog    log.Logger
	closers []io.Closer
	out     io.Writer
}

func (p *probe) Close() {
	for _, c := range p.closers {
		c.Close()
	}
}

func main() {
	var opts options
	flag.StringVar(&opts.configFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&opts.address, "addr", "", "TLS address (overrides tls.address)")
	flag.StringVar(&opts.socket, "socket", "", "Local socket path (overrides ipc.socket_path)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&opts.protocolLog, "protocol-log", "", "Write protocol events to this .clog file")
	flag.StringVar(&opts.certDir, "cert-dir", "cfnet-certs", "Directory of the self-signed identity")
	flag.StringVar(&opts.pinFile, "pin", "", "Accept only the server certificate in this PEM file")
	flag.BoolVar(&opts.insecure, "insecure", false, "Skip server certificate verification (testing only)")
	flag.IntVar(&opts.count, "count", 0, "Stop serving after this many messages or sessions (0: run until interrupted)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cfnet-probe [flags] <version|gencert|tls-serve|tls-send|ipc-serve|ipc-send|ipc-share> [args]\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	p, err := newProbe(opts, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		p.logger.Error("command failed", "command", flag.Arg(0), "error", err)
		p.Close()
		os.Exit(1)
	}
}

func newProbe(opts options, out io.Writer) (*probe, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		var err error
		if cfg, err = config.Load(opts.configFile); err != nil {
			return nil, err
		}
	}

	if opts.address != "" {
		cfg.TLS.Address = opts.address
	}
	if opts.socket != "" {
		cfg.IPC.SocketPath = opts.socket
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.protocolLog != "" {
		cfg.Log.ProtocolLog = opts.protocolLog
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &probe{
		cfg:  cfg,
		opts: opts,
		out:  out,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		})),
	}

	var sinks []log.Logger
	if cfg.Log.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.Log.ProtocolLog)
		if err != nil {
			return nil, fmt.Errorf("open protocol log: %w", err)
		}
		sinks = append(sinks, fl)
		p.closers = append(p.closers, fl)
	}
	if cfg.SlogLevel() <= slog.LevelDebug {
		sinks = append(sinks, log.NewSlogAdapter(p.logger))
	}
	switch len(sinks) {
	case 0:
	case 1:
		p.plog = sinks[0]
	default:
		p.plog = log.NewMultiLogger(sinks...)
	}

	return p, nil
}

func (p *probe) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "version":
		fmt.Fprintf(p.out, "cfnet protocol %s (ALPN %s)\n", version.Current, strings.Join(version.SupportedALPNProtocols(), ", "))
		return nil
	case "gencert":
		return p.genCert()
	case "tls-serve":
		return p.serveTLS(ctx)
	case "tls-send":
		if len(args) != 1 {
			return fmt.Errorf("usage: tls-send TEXT")
		}
		return p.sendTLS(ctx, args[0])
	case "ipc-serve":
		return p.serveIPC(ctx)
	case "ipc-send":
		if len(args) != 1 {
			return fmt.Errorf("usage: ipc-send TEXT")
		}
		return p.sendIPC(args[0])
	case "ipc-share":
		if len(args) != 1 {
			return fmt.Errorf("usage: ipc-share FILE")
		}
		return p.shareIPC(args[0])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
