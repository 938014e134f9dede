// Package main provides the lsmkvctl CLI tool for inspecting and
// manipulating lsmkv data directories.
//
// Usage:
//
//	lsmkvctl --db=<path> <command> [options]
//
// Commands:
//
//	get <key>         Get value for a key
//	put <key> <val>   Put a key-value pair
//	delete <key>      Delete a key
//	scan              Scan all live key-value pairs
//	stats             Print engine statistics
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/aalhour/lsmkv"
)

var (
	dbPath = flag.String("db", "", "Path to the data directory (required)")
	help   = flag.Bool("help", false, "Print help")
)

func main() {
	flag.Parse()

	if *help || len(flag.Args()) == 0 {
		printUsage()
		return
	}
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --db flag is required")
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "get":
		err = cmdGet(args)
	case "put":
		err = cmdPut(args)
	case "delete":
		err = cmdDelete(args)
	case "scan":
		err = cmdScan()
	case "stats":
		err = cmdStats()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("lsmkvctl - lsmkv data directory inspection tool")
	fmt.Println()
	fmt.Println("Usage: lsmkvctl --db=<path> <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  get <key>         Get value for a key")
	fmt.Println("  put <key> <val>   Put a key-value pair")
	fmt.Println("  delete <key>      Delete a key")
	fmt.Println("  scan              Scan all live key-value pairs")
	fmt.Println("  stats             Print engine statistics")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}

func openEngine() (*lsmkv.Engine, error) {
	return lsmkv.Open(lsmkv.DefaultOptions(*dbPath))
}

func cmdGet(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <key>")
	}
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	val, ok, err := e.Get(args[0])
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("(not found)")
		return nil
	}
	fmt.Println(string(val))
	return nil
}

func cmdPut(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: put <key> <value>")
	}
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	return e.Put(args[0], []byte(args[1]))
}

func cmdDelete(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <key>")
	}
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	return e.Delete(args[0])
}

func cmdScan() error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	entries, err := e.Scan()
	if err != nil {
		return err
	}
	for k, v := range entries {
		fmt.Printf("%s = %s\n", k, v)
	}
	return nil
}

func cmdStats() error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	s, err := e.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("memtable: %d entries, %d bytes\n", s.MemtableEntries, s.MemtableBytes)
	fmt.Printf("wal: %d bytes\n", s.WalBytes)
	fmt.Printf("sstables: %d files, %d bytes\n", s.SstableCount, s.SstableTotalBytes)
	fmt.Printf("block cache: %d/%d entries\n", s.BlockCacheLength, s.BlockCacheCapacity)
	for _, rs := range s.ReaderStats {
		fmt.Printf("  %s: [%s, %s], %d records, ts=%d\n", rs.Path, rs.MinKey, rs.MaxKey, rs.RecordCount, rs.Timestamp)
	}
	return nil
}
