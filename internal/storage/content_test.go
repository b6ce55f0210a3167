package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/tabula/internal/apperr"
)

func TestContentReadWrite(t *testing.T) {
	s := tempVault(t)
	c := NewContent(s, 0)
	ctx := context.Background()

	if err := c.WriteContent(ctx, "/daily/today.md", "# Today"); err != nil {
		t.Fatalf("WriteContent: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.root, "daily", "today.md")); err != nil {
		t.Fatalf("file not under vault root: %v", err)
	}
	got, err := c.ReadContent(ctx, "/daily/today.md")
	if err != nil {
		t.Fatalf("ReadContent: %v", err)
	}
	if got != "# Today" {
		t.Errorf("content = %q", got)
	}
	got, err = c.ReadContent(ctx, `\daily\today.md`)
	if err != nil || got != "# Today" {
		t.Errorf("backslash path: %q, %v", got, err)
	}
}

func TestContentErrorsAreClassified(t *testing.T) {
	s := tempVault(t)
	c := NewContent(s, 0)
	ctx := context.Background()

	_, err := c.ReadContent(ctx, "/missing.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing note: got %v, want ErrNotFound", err)
	}

	err = c.WriteContent(ctx, "/../outside.md", "x")
	if !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("escape: got %v, want ErrPermissionDenied", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = c.ReadContent(canceled, "/missing.md")
	if !errors.Is(err, apperr.ErrIO) || !errors.Is(err, context.Canceled) {
		t.Errorf("canceled: got %v, want ErrIO wrapping context.Canceled", err)
	}
}

func TestNotePath(t *testing.T) {
	cases := map[string]string{
		"a.md":         "/a.md",
		"/a.md":        "/a.md",
		`sub\b.md`:     "/sub/b.md",
		"sub/dir/c.md": "/sub/dir/c.md",
	}
	for in, want := range cases {
		if got := NotePath(in); got != want {
			t.Errorf("NotePath(%q) = %q, want %q", in, got, want)
		}
	}
}
