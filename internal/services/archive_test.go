package services

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/darusc/Fileknight/internal/models"
	"github.com/klauspost/compress/zip"
)

func readArchive(t *testing.T, d *Download) map[string]string {
	t.Helper()
	body, size, err := d.Body(false)
	if err != nil {
		t.Fatalf("Body failed: %v", err)
	}
	data, err := io.ReadAll(body)
	_ = body.Close()
	if err != nil {
		t.Fatalf("failed reading archive: %v", err)
	}
	if int64(len(data)) != size {
		t.Fatalf("reported size %d, read %d", size, len(data))
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}
	entries := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("failed opening entry %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("failed reading entry %s: %v", f.Name, err)
		}
		entries[f.Name] = string(content)
	}
	return entries
}

func entryNames(entries map[string]string) []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func TestArchiveService_SingleFile(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	_, root := env.createUser(t, "alice")
	file := env.upload(t, root, "report.pdf", "%PDF-1.4 hello")

	d, err := env.archive.BuildDownload(ctx, nil, []*models.File{file})
	if err != nil {
		t.Fatalf("BuildDownload failed: %v", err)
	}
	defer d.Discard()

	if d.Temporary || d.Path != "" {
		t.Fatal("single file must not build an archive")
	}
	if d.Filename != "report.pdf" {
		t.Fatalf("unexpected filename %q", d.Filename)
	}
	body, size, err := d.Body(true)
	if err != nil {
		t.Fatalf("Body failed: %v", err)
	}
	data, _ := io.ReadAll(body)
	if string(data) != "%PDF-1.4 hello" || size != int64(len(data)) {
		t.Fatalf("unexpected payload %q (%d)", data, size)
	}
}

func TestArchiveService_Archive(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	_, root := env.createUser(t, "alice")
	env.archive.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }

	work := env.mkdir(t, root, "Work")
	sub := env.mkdir(t, work, "Sub")
	env.mkdir(t, work, "Empty")
	hidden := env.mkdir(t, work, "Hidden")
	env.upload(t, work, "report.pdf", "r")
	env.upload(t, sub, "deep.txt", "d")
	env.upload(t, hidden, "secret.txt", "s")
	binnedFile := env.upload(t, work, "old.txt", "o")
	loose := env.upload(t, root, "notes.txt", "n")

	if err := env.dirs.SoftDelete(ctx, hidden); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if err := env.files.SoftDelete(ctx, binnedFile); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	d, err := env.archive.BuildDownload(ctx, []*models.Directory{work}, []*models.File{loose})
	if err != nil {
		t.Fatalf("BuildDownload failed: %v", err)
	}
	defer d.Discard()

	if !d.Temporary || d.Filename != "" || d.ContentType != "application/zip" {
		t.Fatalf("unexpected download %+v", d)
	}
	if name := filepath.Base(d.Path); !strings.HasPrefix(name, "download_20250304_050607_") || !strings.HasSuffix(name, ".zip") {
		t.Fatalf("unexpected archive name %q", name)
	}

	entries := readArchive(t, d)
	want := map[string]string{
		"notes.txt":         "n",
		"Work/report.pdf":   "r",
		"Work/Sub/deep.txt": "d",
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %v, want %v", entryNames(entries), want)
	}
	for name, content := range want {
		if entries[name] != content {
			t.Fatalf("entry %s = %q, want %q (all: %v)", name, entries[name], content, entryNames(entries))
		}
	}
}

func TestArchiveService_Collisions(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	_, root := env.createUser(t, "alice")

	a := env.mkdir(t, root, "a")
	b := env.mkdir(t, root, "b")
	fa := env.upload(t, a, "same.txt", "first")
	fb := env.upload(t, b, "same.txt", "second")
	// No declared extension, so the sniffed one is used.
	env.upload(t, a, "README", "x")

	// Moves keep the name, so a now holds two files called same.txt.
	if _, err := env.files.Update(ctx, fb, a, nil); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	d, err := env.archive.BuildDownload(ctx, []*models.Directory{b, a}, []*models.File{fa, fb})
	if err != nil {
		t.Fatalf("BuildDownload failed: %v", err)
	}
	defer d.Discard()

	entries := readArchive(t, d)
	want := []string{"a/README.txt", "a/same(1).txt", "a/same.txt", "same(1).txt", "same.txt"}
	got := entryNames(entries)
	if len(got) != len(want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entries = %v, want %v", got, want)
		}
	}
	if entries["same.txt"] != "first" || entries["same(1).txt"] != "second" {
		t.Fatalf("unexpected root entries %q %q", entries["same.txt"], entries["same(1).txt"])
	}
}

func TestArchiveService_SameNamedFolders(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	_, root := env.createUser(t, "alice")

	first := env.mkdir(t, env.mkdir(t, root, "p1"), "Work")
	second := env.mkdir(t, env.mkdir(t, root, "p2"), "Work")
	env.upload(t, first, "a.txt", "one")
	env.upload(t, second, "a.txt", "two")

	d, err := env.archive.BuildDownload(ctx, []*models.Directory{first, second}, nil)
	if err != nil {
		t.Fatalf("BuildDownload failed: %v", err)
	}
	defer d.Discard()

	entries := readArchive(t, d)
	if len(entries) != 2 {
		t.Fatalf("entries = %v, want 2", entryNames(entries))
	}
	if entries["Work/a.txt"] != "one" || entries["Work(1)/a.txt"] != "two" {
		t.Fatalf("folders were merged or misnamed: %v", entries)
	}
}

func TestArchiveWriter_Reserve(t *testing.T) {
	w := &archiveWriter{used: map[string]struct{}{}}
	got := []string{
		w.reserve("x.txt"),
		w.reserve("x.txt"),
		w.reserve("x.txt"),
		w.reserve("dir/README"),
		w.reserve("dir/README"),
		w.reserve("/lead/trail/"),
		w.reserve(".hidden"),
		w.reserve(".hidden"),
	}
	want := []string{"x.txt", "x(1).txt", "x(2).txt", "dir/README", "dir/README(1)", "lead/trail", ".hidden", ".hidden(1)"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reserve #%d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestArchiveService_Errors(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	_, root := env.createUser(t, "alice")

	t.Run("empty selection", func(t *testing.T) {
		_, err := env.archive.BuildDownload(ctx, nil, nil)
		assertAppError(t, err, ErrNoDownloadTargets)
	})

	t.Run("missing object in a single download", func(t *testing.T) {
		file := env.upload(t, root, "gone.txt", "x")
		if err := env.fs.Remove(ctx, root.Name, file.ID); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		_, err := env.archive.BuildDownload(ctx, nil, []*models.File{file})
		assertAppError(t, err, ErrFileNotFound)
	})

	t.Run("missing object aborts an archive and cleans up", func(t *testing.T) {
		ok := env.upload(t, root, "ok.txt", "x")
		lost := env.upload(t, root, "lost.txt", "x")
		if err := env.fs.Remove(ctx, root.Name, lost.ID); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		_, err := env.archive.BuildDownload(ctx, nil, []*models.File{ok, lost})
		if !IsKind(err, KindStorageIO) {
			t.Fatalf("expected storage error, got %v", err)
		}
		left, err := os.ReadDir(env.tempDir)
		if err != nil {
			t.Fatalf("ReadDir failed: %v", err)
		}
		if len(left) != 0 {
			t.Fatalf("expected temp dir to be empty, found %d entries", len(left))
		}
	})

	t.Run("removing after send", func(t *testing.T) {
		a := env.upload(t, root, "a.txt", "a")
		b := env.upload(t, root, "b.txt", "b")
		d, err := env.archive.BuildDownload(ctx, nil, []*models.File{a, b})
		if err != nil {
			t.Fatalf("BuildDownload failed: %v", err)
		}
		body, _, err := d.Body(true)
		if err != nil {
			t.Fatalf("Body failed: %v", err)
		}
		_, _ = io.Copy(io.Discard, body)
		if err := body.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if _, err := os.Stat(d.Path); !os.IsNotExist(err) {
			t.Fatalf("expected archive removed, got %v", err)
		}
	})
}
