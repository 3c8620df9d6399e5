// Package manager implements Manager: the multi-Base lifecycle owner.
// It opens a Base for a stream name on first use, single-flights
// concurrent opens of the same stream, and runs an idle sweep that
// closes Bases with no active subscribers past their keep-alive window.
package manager
