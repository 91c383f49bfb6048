/*
Package bindom converts between binding objects (plain Go structs registered
with a Loader) and normalized DOM trees described by a schema.Context.

We implement:

1. Codec contexts, one per (schema node, bound Go type) pair, built lazily
and memoized for the lifetime of a Codec.

2. Path translation between binding instance identifiers and DOM paths, in
both directions.

3. Serialization of data objects, list entries, choices, augmentations,
notifications and RPC input/output, and the reverse.

4. Leaf value codecs for every built-in type category, including unions,
bits, identities and instance identifiers.

# Technical Details

**Classes.**
A class is a Go struct bound to a schema QName. Lists additionally carry a
key class whose fields mirror the key leaves. Choices are Go interfaces;
their cases are structs whose pointers implement the interface.

**Field matching.**
Struct fields map to schema children by name: "IPAddress" binds to
"ip-address". A `yang:"name"` tag overrides the derived name, `yang:"-"`
excludes the field. Boolean fields named IsXxx also bind to boolean and empty
leaves named "xxx".

**Augmentations.**
Nodes added by a foreign module live in a separate class registered with
RegisterAugmentation and are carried in the Augmentations field of the
target object.

**Contexts.**
Each context is built at most once per Codec, even under concurrent lookups.
Build failures are memoized too, so a broken binding reports the same error
every time.

## Errors

All failures are *CodecError values wrapping one of:

1. ErrMissingSchema: the schema does not know the node or module.

2. ErrMissingClass: the schema knows the node but no class is loaded for it.

3. ErrIncorrectNesting: the node exists but not where it was found.

4. ErrUnsupported: the operation makes no sense for the node.
*/
package bindom
