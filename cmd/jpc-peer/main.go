// Command jpc-peer is a runnable two-role binary, in the manner of
// cmd/peer_mockup/main.go: a -listen/-dial pair picks whether this
// process waits for a connection or initiates one, and -transport picks
// which transport/* binding carries the wire verbs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bfix/gospel/logger"

	"github.com/benbucksch/jpc/classmirror"
	"github.com/benbucksch/jpc/config"
	"github.com/benbucksch/jpc/dispatch"
	"github.com/benbucksch/jpc/examples/ledger"
	"github.com/benbucksch/jpc/examples/resolver"
	"github.com/benbucksch/jpc/registry"
	"github.com/benbucksch/jpc/transport"
	"github.com/benbucksch/jpc/transport/httprpc"
	"github.com/benbucksch/jpc/transport/redistransport"
	"github.com/benbucksch/jpc/transport/tcp"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		cfgPath       string
		transportName string
		listenAddr    string
		dialAddr      string
		seedName      string
	)
	flag.StringVar(&cfgPath, "c", "", "path to a JSON config file (overrides the flags below)")
	flag.StringVar(&transportName, "transport", "tcp", "transport/* binding: tcp|redis|http")
	flag.StringVar(&listenAddr, "listen", "", "address to listen on (server role)")
	flag.StringVar(&dialAddr, "dial", "", "address to dial (client role)")
	flag.StringVar(&seedName, "seed", "ledger", "demo object to publish as the start seed: ledger|resolver")
	flag.Parse()

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			fmt.Println("config: " + err.Error())
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg.Transport = transportName
		cfg.Seed = seedName
		cfg.TCP = config.TCPConfig{ListenAddr: listenAddr, DialAddr: dialAddr}
	}

	fmt.Println("======================================================================")
	fmt.Println("jpc-peer: transparent object-graph RPC demo")
	fmt.Printf("    transport=%s seed=%s\n", cfg.Transport, cfg.Seed)
	fmt.Println("======================================================================")

	t, err := buildTransport(ctx, cfg)
	if err != nil {
		logger.Printf(logger.ERROR, "transport setup failed: %s", err)
		os.Exit(1)
	}

	seed, err := buildSeed(cfg.Seed)
	if err != nil {
		logger.Printf(logger.ERROR, "seed setup failed: %s", err)
		os.Exit(1)
	}

	var alloc registry.IDAllocator = registry.UUIDAllocator{}
	switch cfg.IDAllocator {
	case "counter":
		alloc = registry.NewCounterAllocator("peer")
	case "hash":
		alloc = registry.NewHashIDAllocator()
	}
	objects := registry.New(alloc)
	classes := classmirror.NewRegistry()
	if _, err := classes.Register("Ledger", (*ledger.Ledger)(nil)); err != nil {
		logger.Printf(logger.WARN, "class registration: %s", err)
	}
	if _, err := classes.Register("Resolver", (*resolver.Resolver)(nil)); err != nil {
		logger.Printf(logger.WARN, "class registration: %s", err)
	}

	core := dispatch.NewCore(t, objects, classes, seed)
	core.RegisterConstructor("Ledger", func(args []any) (any, error) {
		owner, _ := args[0].(string)
		dsn, _ := args[1].(string)
		return ledger.Open(owner, dsn)
	})
	core.RegisterConstructor("Resolver", func(args []any) (any, error) {
		server, _ := args[0].(string)
		return resolver.New(server), nil
	})

	// The peer's first action is to issue start with no payload — only
	// the dialing side initiates; the listening side only ever answers it.
	if cfg.TCP.DialAddr != "" || cfg.HTTP.RemoteURL != "" {
		remoteSeed, err := core.Start(ctx)
		if err != nil {
			logger.Printf(logger.ERROR, "start handshake failed: %s", err)
		} else {
			logger.Printf(logger.INFO, "start handshake complete, remote seed: %#v", remoteSeed)
		}
	}

	fmt.Println("peer ready; Ctrl-C to exit")

	sigCh := make(chan os.Signal, 5)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("shutting down")
}

func buildTransport(ctx context.Context, cfg *config.PeerConfig) (transport.Contract, error) {
	switch cfg.Transport {
	case "tcp":
		if cfg.TCP.ListenAddr != "" {
			ln, err := tcp.Listen(cfg.TCP.ListenAddr)
			if err != nil {
				return nil, err
			}
			conn, err := ln.Accept()
			if err != nil {
				return nil, err
			}
			return tcp.New(conn), nil
		}
		return tcp.Dial(cfg.TCP.DialAddr)
	case "redis":
		return redistransport.New(ctx, cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.ChannelOut, cfg.Redis.ChannelIn)
	case "http":
		if cfg.HTTP.ListenAddr != "" {
			return httprpc.NewServer(cfg.HTTP.ListenAddr), nil
		}
		return httprpc.NewClient(cfg.HTTP.RemoteURL), nil
	default:
		return nil, fmt.Errorf("jpc-peer: unknown transport %q", cfg.Transport)
	}
}

func buildSeed(name string) (any, error) {
	switch name {
	case "ledger":
		return ledger.Open("demo", "sqlite3::memory:")
	case "resolver":
		return resolver.New("1.1.1.1:53"), nil
	default:
		return nil, fmt.Errorf("jpc-peer: unknown seed %q", name)
	}
}
