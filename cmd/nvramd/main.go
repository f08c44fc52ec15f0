// Command nvramd opens a kv.Store per its config file and serves it
// over RPC until signaled to stop.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/pblog/config"
	"github.com/google/pblog/internal/nvramrpc"
	"github.com/google/pblog/kv"
	"github.com/google/pblog/record"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  nvramd -config <path> [-addr <listen-addr>]")
	os.Exit(1)
}

func main() {
	var (
		configPath = flag.String("config", "", "path to the pblog YAML config")
		addr       = flag.String("addr", ":1729", "RPC listen address")
	)
	flag.Parse()

	if *configPath == "" {
		usage()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("nvramd: %v", err)
	}

	dev, err := cfg.OpenDevice()
	if err != nil {
		log.Fatalf("nvramd: %v", err)
	}

	flashLog, err := record.Mount(cfg.RecordRegions(), dev)
	if err != nil {
		log.Fatalf("nvramd: could not mount record log: %v", err)
	}
	store := kv.Open(flashLog)

	listenAddr, cleanup, err := nvramrpc.StartRPC(store, *addr)
	if err != nil {
		log.Fatalf("nvramd: could not start RPC server: %v", err)
	}
	log.Printf("RPC server listening on %s", listenAddr)
	defer cleanup()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received %v, shutting down", sig)
}
