// Package policy holds the static authorization table.
//
// Roles are totally ordered (viewer < analyst < manager < admin) and permissions are
// monotonic in that order. The table is built once at package init and never mutated.
package policy
