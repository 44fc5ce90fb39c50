// SPDX-License-Identifier: MPL-2.0

// Package ledger persists the build cache record: the fingerprint of the
// inputs that produced a pack run's artifacts plus the flavor-to-path
// mapping of those artifacts. The record is the single source of truth
// the push pipeline validates before deciding whether a repack is
// needed.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
)

// FileName is the cache record file name inside the cache directory.
const FileName = "cache.json"

// Fingerprint is a normalized snapshot of the inputs that drive a pack
// run. Two fingerprints are equal iff every scalar field is equal and
// the set-valued fields contain the same elements regardless of order.
type Fingerprint struct {
	RuntimesVersion string   `json:"runtimesVersion"`
	RuntimesURL     string   `json:"runtimesUrl"`
	Configuration   string   `json:"config"`
	NoSymbols       bool     `json:"noSymbols"`
	Defines         []string `json:"defines"`
	Properties      []string `json:"properties"`
}

// Normalized returns a copy with the set-valued fields sorted and
// deduplicated, which is the canonical representation for comparison
// and serialization.
func (f Fingerprint) Normalized() Fingerprint {
	f.Defines = normalizeSet(f.Defines)
	f.Properties = normalizeSet(f.Properties)
	return f
}

// Equal reports structural equality over the normalized representation.
func (f Fingerprint) Equal(other Fingerprint) bool {
	a, b := f.Normalized(), other.Normalized()
	return a.RuntimesVersion == b.RuntimesVersion &&
		a.RuntimesURL == b.RuntimesURL &&
		a.Configuration == b.Configuration &&
		a.NoSymbols == b.NoSymbols &&
		slices.Equal(a.Defines, b.Defines) &&
		slices.Equal(a.Properties, b.Properties)
}

func normalizeSet(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []string{}
	}
	return out
}

// Record is one persisted cache entry. Targets maps flavor tokens to
// absolute artifact paths; keys serialize in sorted order. A record is
// written exactly once, at the end of a successful pack run, and is
// never partially updated.
type Record struct {
	ToolVersion string            `json:"version"`
	Inputs      Fingerprint       `json:"inputs"`
	Targets     map[string]string `json:"targets"`
}

// Write serializes the record to path, fully replacing any prior file.
// The fingerprint is normalized before writing so the on-disk form is
// canonical.
func Write(path string, rec Record) error {
	rec.Inputs = rec.Inputs.Normalized()
	if rec.Targets == nil {
		rec.Targets = map[string]string{}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing cache record to %s: %w", path, err)
	}
	return nil
}

// Read deserializes a record from path. A missing or malformed file is
// returned as an error for the caller to treat as "cache absent or
// corrupt"; it is never fatal on its own.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("reading cache record from %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding cache record from %s: %w", path, err)
	}
	return rec, nil
}

// Delete removes the cache record at path if it exists. Pack runs call
// this first so a run that fails mid-way leaves no stale-but-plausible
// record behind.
func Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting cache record %s: %w", path, err)
	}
	return nil
}
