// Package panel writes short ASCII command tokens to panel control nodes.
package panel

import (
	"log"
	"os"
	"path/filepath"
)

// RefreshCtrlNode is the sub-node that accepts frame-insertion commands.
const RefreshCtrlNode = "refresh_ctrl"

// RefreshCtrlFrameInsert is the vendor frame-insertion command token.
const RefreshCtrlFrameInsert = "panel_refresh_ctrl_fi"

// CommandWriter writes a command token to a named panel control node and
// reports success. Failures are non-fatal; callers log and move on.
type CommandWriter interface {
	WriteCommand(node, token string) bool
}

// NodeWriter writes command tokens to files under the panel's file-node
// directory, one write per command, sysfs style.
type NodeWriter struct {
	base string
}

// NewNodeWriter creates a writer rooted at the display's panel file-node
// path. An empty path yields a writer whose writes always fail; the
// condition is logged once here and per write by callers.
func NewNodeWriter(base string) *NodeWriter {
	if base == "" {
		log.Printf("[panel] no panel file node path configured, command writes will fail")
	}
	return &NodeWriter{base: base}
}

func (w *NodeWriter) WriteCommand(node, token string) bool {
	if w.base == "" {
		return false
	}
	path := filepath.Join(w.base, node)
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		log.Printf("[panel] open %s: %v", path, err)
		return false
	}
	defer f.Close()
	if _, err := f.WriteString(token); err != nil {
		log.Printf("[panel] write %q to %s: %v", token, path, err)
		return false
	}
	return true
}
