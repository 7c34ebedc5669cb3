package data

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// KindEntry describes one native resource kind scripts may allocate.
type KindEntry struct {
	Name        string `yaml:"name"`
	Limit       int    `yaml:"limit"` // max live instances; 0 = bounded only by the arena
	Description string `yaml:"description"`
}

type kindListFile struct {
	Kinds []KindEntry `yaml:"kinds"`
}

// KindTable indexes resource kinds by name.
type KindTable struct {
	kinds map[string]*KindEntry
}

// DefaultKinds mirrors data/yaml/resource_kinds.yaml.
func DefaultKinds() *KindTable {
	return newKindTable([]KindEntry{
		{Name: "sprite", Limit: 8, Description: "off-screen drawing surface"},
		{Name: "gif", Limit: 4, Description: "animated image decoder"},
		{Name: "textviewer", Limit: 2, Description: "scrollable text viewer"},
	})
}

// LoadKindTable loads resource_kinds.yaml. A missing file yields the built-in
// defaults.
func LoadKindTable(path string) (*KindTable, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultKinds(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read resource kinds: %w", err)
	}
	var f kindListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse resource kinds: %w", err)
	}
	for _, k := range f.Kinds {
		if k.Name == "" {
			return nil, fmt.Errorf("parse resource kinds: entry without name")
		}
		if k.Limit < 0 {
			return nil, fmt.Errorf("parse resource kinds: %s: negative limit", k.Name)
		}
	}
	return newKindTable(f.Kinds), nil
}

func newKindTable(entries []KindEntry) *KindTable {
	t := &KindTable{kinds: make(map[string]*KindEntry, len(entries))}
	for i := range entries {
		e := &entries[i]
		t.kinds[e.Name] = e
	}
	return t
}

// Get returns the entry for name, or nil if the kind is unknown.
func (t *KindTable) Get(name string) *KindEntry {
	return t.kinds[name]
}

// Limit returns the per-kind quota, 0 meaning unlimited. Unknown kinds report
// false.
func (t *KindTable) Limit(name string) (int, bool) {
	e := t.kinds[name]
	if e == nil {
		return 0, false
	}
	return e.Limit, true
}

// Names returns the kind names in sorted order.
func (t *KindTable) Names() []string {
	out := make([]string, 0, len(t.kinds))
	for n := range t.kinds {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (t *KindTable) Count() int {
	return len(t.kinds)
}
