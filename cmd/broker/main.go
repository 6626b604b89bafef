// Command broker runs the message routing fabric described by a TOML
// configuration file passed as its only positional argument.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/skytfs/streammesh/internal/broker"
	"github.com/skytfs/streammesh/pkg/config"
	"github.com/skytfs/streammesh/pkg/logger"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <config.toml>\n", os.Args[0])
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	log := logger.New("broker")

	cfg, err := config.Load(flag.Arg(0))
	if err != nil {
		log.Fatal("failed to load config: %v", err)
	}

	srv, err := broker.New(cfg, log)
	if err != nil {
		log.Fatal("failed to build broker: %v", err)
	}

	ln, err := net.Listen("tcp", cfg.Host)
	if err != nil {
		log.Fatal("failed to listen on %s: %v", cfg.Host, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("broker health at startup: %s", srv.Health().Overall())

	if err := srv.Serve(ctx, ln); err != nil {
		log.Error("broker exited with error: %v", err)
		os.Exit(1)
	}
	log.Info("broker health at shutdown: %s", srv.Health().Overall())
}
