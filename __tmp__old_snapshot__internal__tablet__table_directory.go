package tablet

// TableDirectory is the name -> tableId catalog. Names are unique; there is
// no rename operation.
type TableDirectory struct {
	byName   map[string]uint64
	nextId   uint64
}

func NewTableDirectory() *TableDirectory {
	return &TableDirectory{byName: make(map[string]uint64)}
}

// Create allocates a new tableId for name unless it already exists, in
// which case it returns the existing id and existed=true: creating a
// table that already exists is a no-op success, not an error.
func (d *TableDirectory) Create(name string) (id uint64, existed bool) {
	if id, ok := d.byName[name]; ok {
		return id, true
	}
	id = d.nextId
	d.nextId++
	d.byName[name] = id
	return id, false
}

func (d *TableDirectory) Lookup(name string) (uint64, bool) {
	id, ok := d.byName[name]
	return id, ok
}

// Drop removes name if present and reports whether it was present.
func (d *TableDirectory) Drop(name string) bool {
	if _, ok := d.byName[name]; !ok {
		return false
	}
	delete(d.byName, name)
	return true
}

func (d *TableDirectory) Len() int {
	return len(d.byName)
}


