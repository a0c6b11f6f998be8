// ABOUTME: Registers the gateway's built-in tools into a registry
// ABOUTME: Loads the docs index and routes file the tools read from

package builtins

import (
	"fmt"
	"log/slog"

	"github.com/2389/dexi-gateway/internal/docs"
	"github.com/2389/dexi-gateway/internal/tools"
)

// Deps holds the data the built-in tools serve.
type Deps struct {
	Docs   *docs.Index
	Routes Routes
}

// LoadDeps builds Deps from a docs directory and a routes file. A missing routes
// file leaves every action on the dashboard fallback.
func LoadDeps(docsDir, routesPath string, logger *slog.Logger) (Deps, error) {
	idx, err := docs.Load(docsDir, logger)
	if err != nil {
		return Deps{}, err
	}
	routes := Routes{}
	if routesPath != "" {
		loaded, err := LoadRoutes(routesPath)
		if err != nil {
			logger.Warn("ui routes unavailable, navigation falls back to dashboard", "path", routesPath, "error", err)
		} else {
			routes = loaded
		}
	}
	return Deps{Docs: idx, Routes: routes}, nil
}

// Register adds docs-search, rbac-inspector and ui-navigator to reg.
func Register(reg *tools.Registry, deps Deps) error {
	if deps.Docs == nil {
		deps.Docs = docs.FromMarkdown(nil)
	}
	defs := []tools.Definition{
		DocsSearch(deps.Docs),
		RBACInspector(),
		UINavigator(deps.Routes),
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("registering %s: %w", def.ID, err)
		}
	}
	return nil
}
