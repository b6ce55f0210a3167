//go:build sqlite_fts5

package index

import (
	"testing"
	"time"
)

func TestMatchQuery(t *testing.T) {
	cases := map[string]string{
		"":              "",
		"zeppelin":      `"zeppelin"*`,
		"deep  notes/a": `"deep" "notes/a"*`,
		`say "hi"`:      `"say" """hi"""*`,
	}
	for in, want := range cases {
		if got := matchQuery(in); got != want {
			t.Errorf("matchQuery(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	row := NoteRow{
		Path:      "fts.md",
		Title:     "FTS Note",
		Checksum:  "f1",
		Tags:      []string{"search"},
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertNote(row, "Tabula keeps split panes of notes searchable."); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}

	results, err := db.Search("searcha", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "fts.md" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_PunctuationIsNotSyntax(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "p.md", Checksum: "p", UpdatedAt: time.Now()}, "see deep/b.md for details")

	if _, err := db.Search(`deep/b.md "unterminated`, 10); err != nil {
		t.Fatalf("Search with punctuation: %v", err)
	}
}

func TestFTS5_DeletePrefixRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "old/gone.md", Checksum: "g", UpdatedAt: time.Now()}, "vanishing content")
	if _, err := db.DeletePrefix("old"); err != nil {
		t.Fatal(err)
	}

	results, _ := db.Search("vanishing", 10)
	if len(results) != 0 {
		t.Errorf("deleted folder still in FTS index: %+v", results)
	}
}

func TestFTS5_MovePrefixRewritesPaths(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "a/n.md", Checksum: "n", UpdatedAt: time.Now()}, "migratory birds")
	if _, err := db.MovePrefix("a", "b"); err != nil {
		t.Fatal(err)
	}

	results, _ := db.Search("migratory", 10)
	if len(results) != 1 || results[0].Path != "b/n.md" {
		t.Errorf("results = %+v", results)
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertNote(NoteRow{Path: "evo.md", Title: "Old", Checksum: "1", UpdatedAt: now}, "original text")
	_ = db.UpsertNote(NoteRow{Path: "evo.md", Title: "New", Checksum: "2", UpdatedAt: now}, "replacement text")

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 || results[0].Title != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
