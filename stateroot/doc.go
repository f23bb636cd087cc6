// Package stateroot resolves the canonical filesystem roots the rest of
// the module writes under: a repo's local state directory, the hub's state
// directory, and the user's global state directory. It holds no state of
// its own — every function is a pure path computation, fallible only when
// an override points somewhere the process cannot use.
package stateroot
