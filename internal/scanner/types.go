package scanner

import (
	"time"
)

// FileRecord is one scanned file. Path is absolute and unique within a scan.
type FileRecord struct {
	Path    string    `json:"path" yaml:"path"`
	Size    int64     `json:"size" yaml:"size"`
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
}

// Inventory is the flat result of one scan.
type Inventory struct {
	Root      string
	Files     []FileRecord
	TotalSize int64
	Warnings  []Warning
}

// TotalCount returns the number of records in the inventory.
func (inv *Inventory) TotalCount() int {
	return len(inv.Files)
}

// NewInventory builds an Inventory from records, recomputing the total size.
func NewInventory(root string, files []FileRecord) *Inventory {
	inv := &Inventory{
		Root:  root,
		Files: files,
	}
	for _, f := range files {
		inv.TotalSize += f.Size
	}
	return inv
}
