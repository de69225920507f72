package refstore

// FileRefs is the id → Reference mapping of one source file. It remembers
// scan order so that rankings over it are stable. A FileRefs is never
// mutated after construction.
type FileRefs struct {
	refs []Reference
	byID map[string]int
}

// NewFileRefs builds a mapping from refs in scan order. A later record with
// an id already seen replaces the earlier one in place.
func NewFileRefs(refs ...Reference) *FileRefs {
	f := &FileRefs{
		refs: make([]Reference, 0, len(refs)),
		byID: make(map[string]int, len(refs)),
	}
	for _, r := range refs {
		if i, ok := f.byID[r.ID]; ok {
			f.refs[i] = r
			continue
		}
		f.byID[r.ID] = len(f.refs)
		f.refs = append(f.refs, r)
	}
	return f
}

// Len returns the number of references. Safe on a nil receiver.
func (f *FileRefs) Len() int {
	if f == nil {
		return 0
	}
	return len(f.refs)
}

// Get returns the reference with the given id.
func (f *FileRefs) Get(id string) (Reference, bool) {
	if f == nil {
		return Reference{}, false
	}
	i, ok := f.byID[id]
	if !ok {
		return Reference{}, false
	}
	return f.refs[i], true
}

// All returns the references in scan order. The returned slice is a copy.
func (f *FileRefs) All() []Reference {
	if f == nil {
		return nil
	}
	out := make([]Reference, len(f.refs))
	copy(out, f.refs)
	return out
}

// IDs returns the reference ids in scan order.
func (f *FileRefs) IDs() []string {
	if f == nil {
		return nil
	}
	ids := make([]string, len(f.refs))
	for i, r := range f.refs {
		ids[i] = r.ID
	}
	return ids
}
