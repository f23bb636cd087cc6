package ticket

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTicket(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTicket(t, dir, "TICKET-001.md", "---\nagent: codex\ndone: false\ntitle: Do the thing\n---\nBody text.\n")

	tk, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if tk.Number != 1 {
		t.Errorf("Number = %d, want 1", tk.Number)
	}
	if tk.Frontmatter.Agent != "codex" {
		t.Errorf("Agent = %q, want codex", tk.Frontmatter.Agent)
	}
	if tk.Done() {
		t.Errorf("Done() = true, want false")
	}
	if tk.Frontmatter.Title != "Do the thing" {
		t.Errorf("Title = %q", tk.Frontmatter.Title)
	}
	if tk.Body != "Body text.\n" {
		t.Errorf("Body = %q", tk.Body)
	}
}

func TestParseFile_DefaultAgent(t *testing.T) {
	dir := t.TempDir()
	path := writeTicket(t, dir, "TICKET-002.md", "---\ndone: true\n---\nbody\n")

	tk, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if tk.Frontmatter.Agent != DefaultAgent {
		t.Errorf("Agent = %q, want default %q", tk.Frontmatter.Agent, DefaultAgent)
	}
	if !tk.Done() {
		t.Errorf("Done() = false, want true")
	}
}

func TestParseFile_BadFilename(t *testing.T) {
	dir := t.TempDir()
	path := writeTicket(t, dir, "not-a-ticket.md", "---\ndone: false\n---\n")

	if _, err := ParseFile(path); !errors.Is(err, ErrParseError) {
		t.Errorf("ParseFile() error = %v, want ErrParseError", err)
	}
}

func TestParseFile_MissingFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := writeTicket(t, dir, "TICKET-003.md", "no frontmatter here\n")

	if _, err := ParseFile(path); !errors.Is(err, ErrParseError) {
		t.Errorf("ParseFile() error = %v, want ErrParseError", err)
	}
}

func TestParseFile_UnclosedFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := writeTicket(t, dir, "TICKET-004.md", "---\ndone: false\nbody without closing delimiter\n")

	if _, err := ParseFile(path); !errors.Is(err, ErrParseError) {
		t.Errorf("ParseFile() error = %v, want ErrParseError", err)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeTicket(t, dir, "TICKET-005.md", "---\nagent: codex\ndone: false\n---\noriginal body\n")

	tk, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := tk.MarkDone(); err != nil {
		t.Fatalf("MarkDone() error = %v", err)
	}

	reread, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reread.Done() {
		t.Errorf("after MarkDone, reread Done() = false")
	}
	if reread.Body != "original body\n" {
		t.Errorf("Body after save = %q, want unchanged", reread.Body)
	}
}

func TestList_OrderAndSkip(t *testing.T) {
	dir := t.TempDir()
	writeTicket(t, dir, "TICKET-002.md", "---\ndone: false\n---\nsecond\n")
	writeTicket(t, dir, "TICKET-001.md", "---\ndone: false\n---\nfirst\n")
	writeTicket(t, dir, "TICKET-003.md", "not frontmatter\n")
	writeTicket(t, dir, "README.md", "ignored, not a ticket\n")

	results, err := List(dir)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Ticket == nil || results[0].Ticket.Number != 1 {
		t.Errorf("results[0] = %+v, want TICKET-001", results[0])
	}
	if results[1].Ticket == nil || results[1].Ticket.Number != 2 {
		t.Errorf("results[1] = %+v, want TICKET-002", results[1])
	}
	if results[2].Err == nil {
		t.Errorf("results[2].Err = nil, want parse error for TICKET-003")
	}
}

func TestList_MissingDir(t *testing.T) {
	results, err := List(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("List() error = %v, want nil for missing dir", err)
	}
	if results != nil {
		t.Errorf("List() = %v, want nil", results)
	}
}

func TestNext_LowestNumberedNotDone(t *testing.T) {
	dir := t.TempDir()
	writeTicket(t, dir, "TICKET-001.md", "---\ndone: true\n---\n")
	writeTicket(t, dir, "TICKET-002.md", "---\ndone: false\n---\n")
	writeTicket(t, dir, "TICKET-003.md", "---\ndone: false\n---\n")

	results, err := List(dir)
	if err != nil {
		t.Fatal(err)
	}
	next := Next(results)
	if next == nil || next.Number != 2 {
		t.Errorf("Next() = %+v, want TICKET-002", next)
	}
}

func TestNext_AllDone(t *testing.T) {
	dir := t.TempDir()
	writeTicket(t, dir, "TICKET-001.md", "---\ndone: true\n---\n")

	results, err := List(dir)
	if err != nil {
		t.Fatal(err)
	}
	if next := Next(results); next != nil {
		t.Errorf("Next() = %+v, want nil", next)
	}
}

func TestNext_SkipsParseErrors(t *testing.T) {
	dir := t.TempDir()
	writeTicket(t, dir, "TICKET-001.md", "broken\n")
	writeTicket(t, dir, "TICKET-002.md", "---\ndone: false\n---\n")

	results, err := List(dir)
	if err != nil {
		t.Fatal(err)
	}
	next := Next(results)
	if next == nil || next.Number != 2 {
		t.Errorf("Next() = %+v, want TICKET-002", next)
	}
}
