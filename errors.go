// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pagekv

import (
	"pagekv/internal/build"
	"pagekv/internal/pageformat"
)

var (
	// ErrDuplicateKey is returned by Builder.Finalize when two Put calls
	// used the same key.
	ErrDuplicateKey = build.ErrDuplicateKey

	// ErrConfigurationInfeasible is returned by Builder.Finalize when no
	// page geometry satisfies the configured waste and external-ratio
	// budgets.
	ErrConfigurationInfeasible = build.ErrConfigurationInfeasible

	// ErrPlacementFailed names a page whose table could not hold its
	// assigned keys. Builder.Finalize does not return it: such a page
	// makes the builder retry with more pages, and if no geometry works
	// the error is ErrConfigurationInfeasible.
	ErrPlacementFailed = build.ErrPlacementFailed

	// ErrMalformedHeader is returned by Open when a file's header fails
	// to validate.
	ErrMalformedHeader = pageformat.ErrMalformedHeader

	// ErrMalformedHeapEntry is returned by Get when a heap entry's
	// varints or lengths are inconsistent with the bytes available.
	ErrMalformedHeapEntry = pageformat.ErrMalformedHeapEntry

	// ErrSlotOutOfRange is returned by Get when a table slot points
	// outside of its page's heap.
	ErrSlotOutOfRange = pageformat.ErrSlotOutOfRange
)
