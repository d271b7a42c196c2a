// Package registry holds the uniqueness indexes shared by every connection stage.
package registry

import "github.com/mcoot/partygate/internal/model"

// Index maps a key to the record that owns it. A key has at most one owner.
// Index is not safe for concurrent use; the lifecycle manager serialises access.
type Index struct {
	name   string
	owners map[string]model.Handle
}

// NewIndex creates an empty index. The name only shows up in logs.
func NewIndex(name string) *Index {
	return &Index{
		name:   name,
		owners: make(map[string]model.Handle),
	}
}

// Name returns the index name
func (i *Index) Name() string {
	return i.name
}

// Claim records h as the owner of key. It returns false, changing nothing, if key is taken.
func (i *Index) Claim(key string, h model.Handle) bool {
	if _, taken := i.owners[key]; taken {
		return false
	}
	i.owners[key] = h
	return true
}

// Release frees key if it is owned by h. Releasing a free key, or one owned by
// another record, is a no-op and returns false.
func (i *Index) Release(key string, h model.Handle) bool {
	owner, ok := i.owners[key]
	if !ok || owner != h {
		return false
	}
	delete(i.owners, key)
	return true
}

// Lookup returns the owner of key
func (i *Index) Lookup(key string) (model.Handle, bool) {
	h, ok := i.owners[key]
	return h, ok
}

// Has reports whether key is taken
func (i *Index) Has(key string) bool {
	_, ok := i.owners[key]
	return ok
}

// Len returns the number of claimed keys
func (i *Index) Len() int {
	return len(i.owners)
}

// Registries pairs the address and display-name indexes. Both keys of a record
// are claimed and released together so one can never outlive the other.
type Registries struct {
	Addresses *Index
	Names     *Index
}

// New creates empty registries
func New() *Registries {
	return &Registries{
		Addresses: NewIndex("address"),
		Names:     NewIndex("name"),
	}
}

// Claim takes both keys for h, or neither
func (r *Registries) Claim(address, displayName string, h model.Handle) bool {
	nameKey := model.NameKey(displayName)
	if r.Addresses.Has(address) || r.Names.Has(nameKey) {
		return false
	}
	r.Addresses.Claim(address, h)
	r.Names.Claim(nameKey, h)
	return true
}

// Release frees both keys held by h. It returns the number of keys freed.
func (r *Registries) Release(address, displayName string, h model.Handle) int {
	freed := 0
	if r.Addresses.Release(address, h) {
		freed++
	}
	if r.Names.Release(model.NameKey(displayName), h) {
		freed++
	}
	return freed
}

// Taken reports which of the two keys is already owned
func (r *Registries) Taken(address, displayName string) (addressTaken, nameTaken bool) {
	return r.Addresses.Has(address), r.Names.Has(model.NameKey(displayName))
}
