package edit

import (
	"fmt"
	"strings"

	"github.com/kikiluvv/splice/internal/media"
)

// ToolMode is the active editing tool of a session
type ToolMode int

const (
	ToolSelect ToolMode = iota
	ToolBlade
)

func (m ToolMode) String() string {
	switch m {
	case ToolSelect:
		return "select"
	case ToolBlade:
		return "blade"
	}
	return fmt.Sprintf("tool(%d)", int(m))
}

// ParseToolMode converts a tool name
func ParseToolMode(s string) (ToolMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "select", "hand", "a":
		return ToolSelect, nil
	case "blade", "cut", "scissors", "b":
		return ToolBlade, nil
	}
	return ToolSelect, fmt.Errorf("unknown tool %q", s)
}

// State is the session state commands may consult
type State struct {
	Tool ToolMode
}

// AssetSource resolves clip asset references
type AssetSource interface {
	Get(id string) (*media.Asset, bool)
}

// Env is handed to every command while it runs
type Env struct {
	State  State
	Assets AssetSource
}

func (e Env) asset(id string) (*media.Asset, error) {
	if e.Assets == nil {
		return nil, fail(ErrNotFound, "asset %s: no registry", id)
	}
	a, ok := e.Assets.Get(id)
	if !ok {
		return nil, fail(ErrNotFound, "asset %s", id)
	}
	return a, nil
}
