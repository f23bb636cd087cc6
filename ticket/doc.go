// Package ticket reads and writes TICKET-NNN.md files: markdown bodies with
// a YAML frontmatter block carrying the unit-of-work state the Engine reads
// and mutates. A ticket is the "done iff frontmatter says so" authority —
// this package never infers completion from body content.
package ticket
