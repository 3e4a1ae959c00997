// Command goguard-auditverify checks the hash chain of JSONL audit files
// written by audit.FileSink or audit.JSONWriterSink. The chain key is
// derived from GOGUARD_MASTER_KEY, which may come from a .env file.
//
// Usage:
//
//	goguard-auditverify [-env .env] audit.jsonl [audit-2.jsonl ...]
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/MrEthical07/goGuard/audit"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/joho/godotenv"
)

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file holding GOGUARD_MASTER_KEY")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
			os.Exit(2)
		}
	}
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "at least one audit file is required")
		os.Exit(2)
	}

	key, err := internal.DeriveKey([]byte(os.Getenv("GOGUARD_MASTER_KEY")), internal.KeyLabelAuditChain)
	if err != nil {
		fmt.Fprintf(os.Stderr, "derive chain key: %v\n", err)
		os.Exit(2)
	}

	var records []map[string]any
	for _, path := range flag.Args() {
		recs, err := readRecords(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			os.Exit(1)
		}
		records = append(records, recs...)
	}

	if err := audit.VerifyChain(key, records); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK: %d records verified\n", len(records))
}

func readRecords(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := audit.DecodeRecords(f)
	if err != nil {
		return nil, fmt.Errorf("after record %d: %w", len(records), err)
	}
	return records, nil
}
