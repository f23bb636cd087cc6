package ticket

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrParseError is the sentinel wrapped by frontmatter parse failures,
// matching the spec's TicketParseError failure kind.
var ErrParseError = errors.New("ticket: parse error")

// nameRE recognizes the TICKET-NNN.md filename convention. NNN is a
// zero-padded index that implies ordering.
var nameRE = regexp.MustCompile(`^TICKET-(\d+)\.md$`)

const frontmatterDelim = "---"

// Frontmatter is the YAML header every ticket file carries.
type Frontmatter struct {
	Agent string `yaml:"agent"`
	Done  bool   `yaml:"done"`
	Title string `yaml:"title,omitempty"`
}

// DefaultAgent is used when a ticket's frontmatter omits `agent`.
const DefaultAgent = "codex"

// Ticket is one parsed TICKET-NNN.md file.
type Ticket struct {
	// Path is the absolute path to the ticket's file on disk.
	Path string

	// Number is the NNN index parsed from the filename.
	Number int

	Frontmatter Frontmatter

	// Body is the markdown content following the frontmatter block.
	Body string
}

// Done reports the ticket's completion state per the frontmatter authority
// invariant: a ticket is done iff its on-disk frontmatter says so.
func (t *Ticket) Done() bool {
	return t.Frontmatter.Done
}

// ParseFile reads and parses a single ticket file.
func ParseFile(path string) (*Ticket, error) {
	base := filepath.Base(path)
	m := nameRE.FindStringSubmatch(base)
	if m == nil {
		return nil, fmt.Errorf("%w: %s: filename does not match TICKET-NNN.md", ErrParseError, path)
	}
	number, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParseError, path, err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParseError, path, err)
	}

	fm, body, err := splitFrontmatter(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParseError, path, err)
	}

	var parsed Frontmatter
	if err := yaml.Unmarshal(fm, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParseError, path, err)
	}
	if parsed.Agent == "" {
		parsed.Agent = DefaultAgent
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &Ticket{
		Path:        abs,
		Number:      number,
		Frontmatter: parsed,
		Body:        body,
	}, nil
}

// splitFrontmatter extracts the YAML block delimited by "---" lines and the
// markdown body that follows it.
func splitFrontmatter(raw []byte) (fm []byte, body string, err error) {
	s := string(raw)
	s = strings.TrimPrefix(s, "﻿")
	lines := strings.SplitAfter(s, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r\n") != frontmatterDelim {
		return nil, "", fmt.Errorf("missing opening %q delimiter", frontmatterDelim)
	}

	var fmLines []string
	i := 1
	closed := false
	for ; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r\n") == frontmatterDelim {
			closed = true
			i++
			break
		}
		fmLines = append(fmLines, lines[i])
	}
	if !closed {
		return nil, "", fmt.Errorf("missing closing %q delimiter", frontmatterDelim)
	}

	return []byte(strings.Join(fmLines, "")), strings.Join(lines[i:], ""), nil
}

// Save writes the ticket back to disk atomically (temp file + rename),
// preserving the frontmatter/body split.
func (t *Ticket) Save() error {
	fm, err := yaml.Marshal(t.Frontmatter)
	if err != nil {
		return fmt.Errorf("ticket: marshal frontmatter for %s: %w", t.Path, err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim + "\n")
	buf.Write(fm)
	buf.WriteString(frontmatterDelim + "\n")
	buf.WriteString(t.Body)

	dir := filepath.Dir(t.Path)
	tmp, err := os.CreateTemp(dir, ".ticket-*.tmp")
	if err != nil {
		return fmt.Errorf("ticket: create temp file for %s: %w", t.Path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("ticket: write temp file for %s: %w", t.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ticket: close temp file for %s: %w", t.Path, err)
	}
	if err := os.Rename(tmpPath, t.Path); err != nil {
		return fmt.Errorf("ticket: rename into place for %s: %w", t.Path, err)
	}
	return nil
}

// MarkDone sets the frontmatter's done flag and saves the file, the single
// critical-section write the Engine performs alongside emitting its
// corresponding ticket_done event.
func (t *Ticket) MarkDone() error {
	t.Frontmatter.Done = true
	return t.Save()
}

// ParseResult pairs a directory entry with either a parsed Ticket or the
// parse error encountered for it, so callers can skip-and-record per §4.4
// step 2 instead of failing the whole listing.
type ParseResult struct {
	Path   string
	Ticket *Ticket
	Err    error
}

// List scans dir for TICKET-NNN.md files and parses each one. Files that
// fail to parse are still reported (with Err set) rather than silently
// dropped; callers are expected to emit a ticket_parse_error event for each
// and otherwise skip them. Results are sorted by ticket Number ascending.
func List(dir string) ([]ParseResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ticket: list %s: %w", dir, err)
	}

	var results []ParseResult
	for _, e := range entries {
		if e.IsDir() || !nameRE.MatchString(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		tk, err := ParseFile(path)
		results = append(results, ParseResult{Path: path, Ticket: tk, Err: err})
	}

	sort.Slice(results, func(i, j int) bool {
		ni, nj := resultNumber(results[i]), resultNumber(results[j])
		if ni != nj {
			return ni < nj
		}
		return results[i].Path < results[j].Path
	})
	return results, nil
}

func resultNumber(r ParseResult) int {
	if r.Ticket != nil {
		return r.Ticket.Number
	}
	if m := nameRE.FindStringSubmatch(filepath.Base(r.Path)); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return -1
}

// Next returns the lowest-numbered ticket among valid entries whose
// frontmatter `done` is falsy, or nil if every ticket is done (or the
// directory is empty) — the spec's "no tickets remaining" condition.
func Next(results []ParseResult) *Ticket {
	for _, r := range results {
		if r.Err != nil || r.Ticket == nil {
			continue
		}
		if !r.Ticket.Done() {
			return r.Ticket
		}
	}
	return nil
}
