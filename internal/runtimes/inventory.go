// SPDX-License-Identifier: MPL-2.0
package runtimes

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RuntimesDirName is the directory inside the extracted archive that
// holds one subdirectory per runtime identifier.
const RuntimesDirName = "runtimes"

// NativeDirName is the per-RID subdirectory holding the native payload.
const NativeDirName = "native"

// Inventory is the set of runtime identifiers discovered in an
// extracted archive, in discovery order, with the native file each
// RID package bundles.
type Inventory struct {
	root   string
	rids   []string
	native map[string]string
}

// DiscoverInventory scans the extracted archive at extractDir for
// runtime identifiers. Each subdirectory of runtimes/ contributes one
// RID (lower-cased; duplicates after folding keep the first). A RID's
// native file is the first regular file, in name order, under its
// native/ subdirectory; RIDs without one are still listed so the
// packaging step can report them.
func DiscoverInventory(extractDir string) (*Inventory, error) {
	root := filepath.Join(extractDir, RuntimesDirName)
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	inv := &Inventory{root: root, native: make(map[string]string)}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rid := strings.ToLower(entry.Name())
		if _, seen := inv.native[rid]; seen {
			continue
		}
		inv.rids = append(inv.rids, rid)
		inv.native[rid] = firstNativeFile(filepath.Join(root, entry.Name(), NativeDirName))
	}
	return inv, nil
}

func firstNativeFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0])
}

// RIDs returns the discovered runtime identifiers in discovery order.
func (inv *Inventory) RIDs() []string {
	out := make([]string, len(inv.rids))
	copy(out, inv.rids)
	return out
}

// NativeFile returns the native payload path for a RID. ok is false
// when the RID has no native file.
func (inv *Inventory) NativeFile(rid string) (string, bool) {
	p := inv.native[strings.ToLower(rid)]
	return p, p != ""
}
