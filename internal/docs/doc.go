// Package docs indexes markdown documentation for the docs-search tool.
package docs
