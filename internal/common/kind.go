package common

import "fmt"

// Kind identifies a synchronized entity family.
type Kind string

const (
	KindClip   Kind = "clip"
	KindFile   Kind = "file"
	KindFilter Kind = "filter"
)

// Kinds lists every kind in sync order: filters first so that tag ids
// referenced by clips and files are known locally before those arrive.
var Kinds = []Kind{KindFilter, KindFile, KindClip}

var collections = map[Kind][2]string{
	KindClip:   {"clips-active", "clips-deleted"},
	KindFile:   {"files-active", "files-deleted"},
	KindFilter: {"filters", "filter-deleted"},
}

// ParseKind converts a textual kind into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := collections[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := collections[k]
	return ok
}

// ActiveCollection is the mirror sub-collection holding live documents.
func (k Kind) ActiveCollection() string {
	return collections[k][0]
}

// DeletedCollection is the mirror sub-collection holding tombstones.
func (k Kind) DeletedCollection() string {
	return collections[k][1]
}
