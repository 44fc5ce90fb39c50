// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Id identifies a registered guidance document.
type Id int

const (
	StaleCacheId Id = iota + 1
	RepackLimitId
	RuntimesConfigId
	MissingNativeBinaryId
	TargetsWithoutLedgerId
	ArtifactIdentityId
)

// MarkdownMsg is rendered guidance text in markdown.
type MarkdownMsg string

// Doc is one guidance document shown for a recurring failure class.
type Doc struct {
	id    Id
	mdMsg MarkdownMsg
}

func (d *Doc) Id() Id {
	return d.id
}

func (d *Doc) MarkdownMsg() MarkdownMsg {
	return d.mdMsg
}

// Render renders the document's markdown with the given glamour style.
func (d *Doc) Render(stylePath string) (string, error) {
	return render(string(d.mdMsg), stylePath)
}

var (
	render = glamour.Render

	staleCacheDoc = &Doc{
		id: StaleCacheId,
		mdMsg: `
# The build cache is stale

The recorded inputs, artifacts, or timestamps no longer match the
current state, so the recorded packages cannot be pushed as-is.

## Things you can try
- Let push repack automatically (the default): drop ` + "`--fail-stale`" + `
- Repack explicitly first:
~~~
$ packsmith pack
~~~
- Push whatever is recorded anyway (best effort):
~~~
$ packsmith push --no-pack --api-key <KEY>
~~~`,
	}

	repackLimitDoc = &Doc{
		id: RepackLimitId,
		mdMsg: `
# Repack attempt limit reached

The cache was still stale after one repack. A push invocation repacks
at most once; a second consecutive staleness is an error because it
usually means an input keeps changing between pack and push.

## Things you can try
- Check for processes touching the source tree or the output directory
- Run the pack and inspect the cache file:
~~~
$ packsmith pack --verbose
~~~
- Compare the recorded inputs in ` + "`cache.json`" + ` against your flags`,
	}

	runtimesConfigDoc = &Doc{
		id: RuntimesConfigId,
		mdMsg: `
# Runtimes configuration is incomplete

Packing RID flavors needs a runtimes version and, when no cached
archive exists, a download URL template.

## Things you can try
- Provide the version and URL on the command line:
~~~
$ packsmith pack --runtimes-version 1.2.3 \
    --runtimes-url "https://example.com/runtimes.{version}.zip"
~~~
- Or set them in your config file:
~~~json
{
  "runtimesVersion": "1.2.3",
  "runtimesUrl": "https://example.com/runtimes.{version}.zip"
}
~~~
The URL template may contain ` + "`{version}`" + ` as a placeholder.`,
	}

	missingNativeBinaryDoc = &Doc{
		id: MissingNativeBinaryId,
		mdMsg: `
# Missing native binary

A requested RID has no native binary under
` + "`runtimes/<rid>/native/`" + ` in the extracted archive.

## Things you can try
- List the RIDs actually present in the archive
- Check the runtimes version matches the one the archive was built for
- Drop ` + "`--strict`" + ` to skip RIDs without binaries with a warning`,
	}

	targetsWithoutLedgerDoc = &Doc{
		id: TargetsWithoutLedgerId,
		mdMsg: `
# Cannot map targets without a cache

With ` + "`--no-pack`" + ` and no cache record there is no reliable way
to map a bare RID name to a package file.

## Things you can try
- Run a pack first so the ledger records the mapping:
~~~
$ packsmith pack
~~~
- Or push everything in the output directory by omitting ` + "`--targets`" + `
  (or passing ` + "`--targets all`" + `)`,
	}

	artifactIdentityDoc = &Doc{
		id: ArtifactIdentityId,
		mdMsg: `
# Cannot identify the produced package

The packaging tool reported success but the newly produced package file
could not be located, or its id/version could not be read back from the
package metadata.

## Things you can try
- Check the output directory for partially written files
- Run the pack with ` + "`--verbose`" + ` and inspect the tool output
- Verify no other process writes packages into the output directory`,
	}

	docs = map[Id]*Doc{
		staleCacheDoc.Id():           staleCacheDoc,
		repackLimitDoc.Id():          repackLimitDoc,
		runtimesConfigDoc.Id():       runtimesConfigDoc,
		missingNativeBinaryDoc.Id():  missingNativeBinaryDoc,
		targetsWithoutLedgerDoc.Id(): targetsWithoutLedgerDoc,
		artifactIdentityDoc.Id():     artifactIdentityDoc,
	}
)

// Values returns all registered guidance documents sorted by id.
func Values() []*Doc {
	all := maps.Values(docs)
	slices.SortFunc(all, func(a, b *Doc) int { return int(a.id) - int(b.id) })
	return all
}

// Get returns the guidance document for the given id, or nil.
func Get(id Id) *Doc {
	return docs[id]
}
