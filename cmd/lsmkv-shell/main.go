// Command lsmkv-shell is an interactive REPL over a local lsmkv
// engine: put/get/delete/flush/sync/stats, one command per line.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"lsmkv/pkg/config"
	"lsmkv/pkg/engine"
)

func main() {
	dataDir := flag.String("data-dir", "./lsmkv-shell-data", "engine data directory")
	configPath := flag.String("config", "", "optional YAML config path")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	config.InitLogger(cfg.Logger)

	e, err := engine.New(*dataDir, cfg.Engine)
	if err != nil {
		slog.Error("open engine failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := e.Close(); err != nil {
			slog.Error("close engine failed", "error", err)
		}
	}()

	fmt.Println("lsmkv shell — data dir:", *dataDir)
	fmt.Println("commands: put <key> <value> | get <key> | delete <key> | flush | sync | stats | quit")

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			runCommand(e, line)
		}
		fmt.Print("> ")
	}
}

func runCommand(e *engine.Engine, line string) {
	fields := strings.SplitN(line, " ", 3)
	cmd := fields[0]

	switch cmd {
	case "put":
		if len(fields) != 3 {
			fmt.Println("usage: put <key> <value>")
			return
		}
		if err := e.Put([]byte(fields[1]), []byte(fields[2])); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("ok")

	case "get":
		if len(fields) != 2 {
			fmt.Println("usage: get <key>")
			return
		}
		value, found, err := e.Get([]byte(fields[1]))
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		if !found {
			fmt.Println("(not found)")
			return
		}
		fmt.Printf("%q\n", value)

	case "delete":
		if len(fields) != 2 {
			fmt.Println("usage: delete <key>")
			return
		}
		if err := e.Delete([]byte(fields[1])); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("ok")

	case "flush":
		if err := e.Flush(); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("ok")

	case "sync":
		if err := e.Sync(); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("ok")

	case "stats":
		fmt.Printf("memtable_size=%d sstable_count=%d last_sequence=%d\n",
			e.MemtableSize(), e.SSTableCount(), e.LastSequence())

	case "quit", "exit":
		if err := e.Close(); err != nil {
			fmt.Println("error closing:", err)
		}
		os.Exit(0)

	default:
		fmt.Printf("unknown command: %s\n", cmd)
	}
}
