// SPDX-License-Identifier: MPL-2.0

// Package flavor defines the packaging flavors of a release run and the
// target resolver that maps a requested target list onto them.
//
// A flavor is one packaging unit kind: the managed "core" package, one
// RID-specific native-binary package, or the umbrella "meta" package.
// Flavors carry an explicit kind so ordering and dependency rules are
// enforced by the type rather than by string convention.
package flavor

import (
	"fmt"
	"strings"
)

// Kind enumerates the three packaging unit kinds.
type Kind int

const (
	// KindCore is the managed core package.
	KindCore Kind = iota
	// KindRID is a platform-specific native-binary package.
	KindRID
	// KindMeta is the umbrella package aggregating the others.
	KindMeta
)

// Reserved target tokens that never name a RID.
const (
	TokenAll  = "all"
	TokenCore = "core"
	TokenMeta = "meta"
)

// Flavor identifies one packaging unit. For KindRID the RID field holds
// the runtime identifier; it is empty for core and meta.
type Flavor struct {
	Kind Kind
	RID  string
}

// Core returns the core flavor.
func Core() Flavor { return Flavor{Kind: KindCore} }

// Meta returns the meta flavor.
func Meta() Flavor { return Flavor{Kind: KindMeta} }

// RID returns the flavor for the given runtime identifier.
func RID(rid string) Flavor { return Flavor{Kind: KindRID, RID: rid} }

// String returns the flavor's target token: "core", "meta", or the RID.
func (f Flavor) String() string {
	switch f.Kind {
	case KindCore:
		return TokenCore
	case KindMeta:
		return TokenMeta
	default:
		return f.RID
	}
}

// Parse maps a normalized target token back onto a Flavor. Any token
// that is not "core" or "meta" is treated as a RID.
func Parse(token string) Flavor {
	switch token {
	case TokenCore:
		return Core()
	case TokenMeta:
		return Meta()
	default:
		return RID(token)
	}
}

// Artifact is one produced package: the flavor it realizes, the path of
// the package file, and the package identity read back from the file.
type Artifact struct {
	Flavor  Flavor
	Path    string
	ID      string
	Version string
}

// Normalize trims and lower-cases a target token. RID matching and
// target comparison are case-insensitive throughout the pipeline.
func Normalize(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

// NormalizeAll normalizes every token in the given list.
func NormalizeAll(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, Normalize(t))
	}
	return out
}

// Resolution is the concrete set of flavors a pack run will produce.
// RIDs preserves the discovery order of the runtime inventory.
type Resolution struct {
	Core     bool
	Meta     bool
	RIDs     []string
	Warnings []string
}

// Flavors returns the resolved flavors in packing order: core first,
// then RIDs in discovery order, then meta.
func (r Resolution) Flavors() []Flavor {
	var out []Flavor
	if r.Core {
		out = append(out, Core())
	}
	for _, rid := range r.RIDs {
		out = append(out, RID(rid))
	}
	if r.Meta {
		out = append(out, Meta())
	}
	return out
}

// UnknownTargetError reports a requested target token that names neither
// a reserved token nor an available RID, under strict resolution.
type UnknownTargetError struct {
	Token string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("requested RID %s not found in native runtime binaries", e.Token)
}

// Resolve computes the set of flavors to pack from the requested target
// tokens and the RIDs discovered in the extracted runtimes archive.
//
// An empty request, or a request containing "all", selects everything:
// core, every available RID, and meta. Otherwise core and meta are
// selected iff their tokens appear in the request, and the RID set is
// the intersection of the request with the available RIDs, in available
// (discovery) order.
//
// A requested token that is neither "core", "meta", "all", nor an
// available RID is a fatal error under strict resolution; otherwise it
// is ignored and recorded as a warning. Tokens are expected to be
// normalized (see Normalize); available RIDs are normalized on entry.
func Resolve(requested, available []string, strict bool) (Resolution, error) {
	available = NormalizeAll(available)

	all := len(requested) == 0
	reqSet := make(map[string]bool, len(requested))
	for _, t := range requested {
		if t == TokenAll {
			all = true
		}
		reqSet[t] = true
	}

	availSet := make(map[string]bool, len(available))
	for _, rid := range available {
		availSet[rid] = true
	}

	res := Resolution{}

	if all {
		res.Core = true
		res.Meta = true
		res.RIDs = append(res.RIDs, available...)
	} else {
		res.Core = reqSet[TokenCore]
		res.Meta = reqSet[TokenMeta]
		for _, rid := range available {
			if reqSet[rid] {
				res.RIDs = append(res.RIDs, rid)
			}
		}
	}

	for _, t := range requested {
		switch t {
		case TokenAll, TokenCore, TokenMeta:
			continue
		}
		if availSet[t] {
			continue
		}
		if strict {
			return Resolution{}, &UnknownTargetError{Token: t}
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("requested RID %s not found in native runtime binaries", t))
	}

	return res, nil
}
