// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Command pagekv builds and queries page-format key/value files from the
// command line.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/cespare/xxhash"

	"pagekv"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "build":
		err = runBuild(os.Args[2:])
	case "get":
		err = runGet(os.Args[2:])
	case "verify":
		err = runVerify(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pagekv <build|get|verify> [flags]")
}

// runBuild reads "key\tvalue" lines (one pair per line) from stdin, or
// from an -input file, and writes a page file to -out.
func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	out := fs.String("out", "", "path to write the finished page file (required)")
	input := fs.String("input", "", "tab-separated key/value input file; defaults to stdin")
	smallChangeBytes := fs.Uint("page-bytes", 8192, "target combined heap+table size of a page")
	maxWasteRatio := fs.Float64("max-waste-ratio", 0.5, "maximum allowed (emitted bytes / raw bytes) - 1")
	maxExternalRatio := fs.Float64("max-external-ratio", 0.1, "maximum allowed fraction of keys resolved via a second read")
	verbose := fs.Bool("v", false, "log progress")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("-out is required")
	}

	var logger *slog.Logger
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	b, err := pagekv.NewBuilder(*out,
		pagekv.WithBuilderLogger(logger),
		pagekv.WithConfiguration(pagekv.Configuration{
			SmallChangeBytes: uint32(*smallChangeBytes),
			MaxWasteRatio:    *maxWasteRatio,
			MaxExternalRatio: *maxExternalRatio,
		}))
	if err != nil {
		return fmt.Errorf("pagekv.NewBuilder: %w", err)
	}

	in := os.Stdin
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			return fmt.Errorf("os.Open(%s): %w", *input, err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	var n int
	for scanner.Scan() {
		line := scanner.Text()
		k, v, ok := strings.Cut(line, "\t")
		if !ok {
			return fmt.Errorf("malformed input line %d: missing tab separator", n+1)
		}
		if err := b.Put([]byte(k), []byte(v)); err != nil {
			return fmt.Errorf("Put: %w", err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	if err := b.Finalize(); err != nil {
		return fmt.Errorf("Finalize: %w", err)
	}
	return nil
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	path := fs.String("file", "", "local page file path")
	url := fs.String("url", "", "remote page file URL (served with Range support)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: pagekv get (-file PATH | -url URL) KEY")
	}
	key := fs.Arg(0)

	ctx := context.Background()
	var (
		tbl *pagekv.Table
		err error
	)
	switch {
	case *path != "":
		tbl, err = pagekv.Open(*path)
	case *url != "":
		tbl, err = pagekv.OpenURL(ctx, *url)
	default:
		return fmt.Errorf("one of -file or -url is required")
	}
	if err != nil {
		return err
	}
	defer func() { _ = tbl.Close() }()

	value, ok, err := tbl.GetString(ctx, key)
	if err != nil {
		return fmt.Errorf("Get: %w", err)
	}
	if !ok {
		return fmt.Errorf("key not found: %q", key)
	}
	_, err = os.Stdout.Write(value)
	return err
}

// runVerify is an operator-facing integrity check: it reads a page file
// and hashes its bytes with xxhash, for comparison against a recorded checksum. It
// is not part of the format itself -- the file has no embedded checksum
// -- just a convenience for detecting bit rot or a bad transfer.
func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	path := fs.String("file", "", "local page file path (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("-file is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		return fmt.Errorf("os.Open(%s): %w", *path, err)
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hashing %s: %w", *path, err)
	}
	fmt.Printf("%016x  %s\n", h.Sum64(), *path)
	return nil
}
