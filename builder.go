// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pagekv

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"pagekv/internal/build"
)

// BuilderOption configures the Builder.
type BuilderOption func(*builderOptions)

type builderOptions struct {
	logger *slog.Logger
	config Configuration
}

// WithBuilderLogger sets an optional logger for the builder to use for
// progress updates. If not provided, no logging output is produced.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(opts *builderOptions) {
		opts.logger = logger
	}
}

// WithConfiguration overrides the sizing budgets Finalize builds against.
// If not provided, DefaultConfiguration is used.
func WithConfiguration(cfg Configuration) BuilderOption {
	return func(opts *builderOptions) {
		opts.config = cfg
	}
}

// Builder accumulates key/value pairs in memory and, on Finalize, runs
// the sizing and placement phases and atomically publishes the result to
// resultPath.
type Builder struct {
	resultPath string
	entries    []build.Entry
	config     Configuration
	logger     *slog.Logger
}

// NewBuilder creates a Builder that will publish its finished file at
// resultPath once Finalize is called.
func NewBuilder(resultPath string, opts ...BuilderOption) (*Builder, error) {
	var options builderOptions
	options.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	options.config = DefaultConfiguration()
	for _, opt := range opts {
		opt(&options)
	}

	resultPath, err := filepath.Abs(resultPath)
	if err != nil {
		return nil, fmt.Errorf("filepath.Abs: %w", err)
	}

	return &Builder{
		resultPath: resultPath,
		config:     options.config.withDefaults(),
		logger:     options.logger,
	}, nil
}

// Put adds a key/value pair to the table. Duplicate keys result in
// ErrDuplicateKey at Finalize time; k and v are copied, so callers may
// reuse their backing arrays immediately after Put returns.
func (b *Builder) Put(k, v []byte) error {
	key := append([]byte(nil), k...)
	value := append([]byte(nil), v...)
	b.entries = append(b.entries, build.Entry{Key: key, Value: value})
	return nil
}

// Finalize runs the sizing and placement phases over every key/value pair
// seen so far, writes the result to a temp file next to resultPath, and
// atomically renames it into place as a read-only file.
func (b *Builder) Finalize() error {
	b.logger.Info("building page file", "entries", len(b.entries), "smallChangeBytes", b.config.SmallChangeBytes)

	data, err := build.Build(b.entries, build.Config{
		SmallChangeBytes: b.config.SmallChangeBytes,
		MaxWasteRatio:    b.config.MaxWasteRatio,
		MaxExternalRatio: b.config.MaxExternalRatio,
	})
	if err != nil {
		return fmt.Errorf("build.Build: %w", err)
	}
	// free the accumulated entries now that they're encoded.
	b.entries = nil

	dir := filepath.Dir(b.resultPath)
	f, err := os.CreateTemp(dir, "pagekv-builder.*.data")
	if err != nil {
		return fmt.Errorf("CreateTemp failed (may need permissions for dir %q): %w", dir, err)
	}
	tmpPath := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing page file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("f.Sync: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("f.Close: %w", err)
	}

	if err := os.Chmod(tmpPath, 0444); err != nil {
		return fmt.Errorf("os.Chmod(0444): %w", err)
	}
	if err := os.Rename(tmpPath, b.resultPath); err != nil {
		return fmt.Errorf("os.Rename: %w", err)
	}
	if err := os.Chmod(b.resultPath, 0444); err != nil {
		return fmt.Errorf("os.Chmod(0444): %w", err)
	}

	b.logger.Info("published page file", "path", b.resultPath, "bytes", len(data))
	return nil
}
