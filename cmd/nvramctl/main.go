// Command nvramctl is a small CLI front-end for the kv package: no
// positional arguments lists every key, one prints a value, two sets
// one.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/pblog/config"
	"github.com/google/pblog/kv"
	"github.com/google/pblog/record"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  nvramctl [-config path]               list all keys")
	fmt.Fprintln(os.Stderr, "  nvramctl [-config path] <key>         print a key's value")
	fmt.Fprintln(os.Stderr, "  nvramctl [-config path] <key> <value> set a key's value")
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", "pblog.yaml", "path to the pblog YAML config")
	flag.Parse()

	args := flag.Args()
	if len(args) > 2 {
		usage()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nvramctl: %v\n", err)
		os.Exit(2)
	}

	dev, err := cfg.OpenDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "nvramctl: %v\n", err)
		os.Exit(2)
	}

	log, err := record.Mount(cfg.RecordRegions(), dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nvramctl: %v\n", err)
		os.Exit(2)
	}
	store := kv.Open(log)

	switch len(args) {
	case 0:
		os.Exit(list(store))
	case 1:
		os.Exit(get(store, args[0]))
	case 2:
		os.Exit(set(store, args[0], args[1]))
	}
}

func list(store *kv.Store) int {
	entries, err := store.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "nvramctl: %v\n", err)
		return 2
	}
	for _, e := range entries {
		fmt.Println(e.Key)
	}
	return 0
}

func get(store *kv.Store, key string) int {
	entry, ok, err := store.Lookup(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nvramctl: %v\n", err)
		return 2
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "nvramctl: %q not found\n", key)
		return 1
	}
	fmt.Println(string(entry.Value))
	return 0
}

func set(store *kv.Store, key, value string) int {
	if err := store.Set(key, []byte(value)); err != nil {
		fmt.Fprintf(os.Stderr, "nvramctl: %v\n", err)
		return 2
	}
	return 0
}
