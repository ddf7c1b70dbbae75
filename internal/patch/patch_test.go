package patch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scribepatch/scribepatch/internal/repo"
)

type fakeReader struct {
	files map[string]string
	errs  map[string]error
}

func (f *fakeReader) ReadFile(path string) (string, error) {
	if err, ok := f.errs[path]; ok {
		return "", err
	}
	content, ok := f.files[path]
	if !ok {
		return "", fmt.Errorf("%s: %w", path, repo.ErrNotFound)
	}
	return content, nil
}

func TestUnifiedIdenticalContentIsEmpty(t *testing.T) {
	b := NewBuilder()
	require.Empty(t, b.Unified("a.go", "same\ncontent\n", "same\ncontent\n"))
}

func TestUnifiedNewFileHasEmptyBeforeSide(t *testing.T) {
	b := NewBuilder()
	diff := b.Unified("notes.md", "", "# Title\nbody\n")

	require.Contains(t, diff, "--- Original notes.md")
	require.Contains(t, diff, "+++ Modified notes.md")
	require.Contains(t, diff, "@@ -0,0 +1,2 @@")
	require.Contains(t, diff, "+# Title")
	require.Contains(t, diff, "+body")
	require.NotContains(t, diff, "\n-")
}

func TestUnifiedModification(t *testing.T) {
	b := NewBuilder()
	before := "line one\nline two\nline three\n"
	after := "line one\nline 2\nline three\n"

	diff := b.Unified("f.txt", before, after)
	require.Contains(t, diff, "-line two")
	require.Contains(t, diff, "+line 2")
	require.Contains(t, diff, " line one")
	require.Contains(t, diff, " line three")
}

func TestUnifiedSeparatesDistantChangesIntoHunks(t *testing.T) {
	var beforeLines, afterLines []string
	for i := 1; i <= 30; i++ {
		beforeLines = append(beforeLines, fmt.Sprintf("line %d", i))
		afterLines = append(afterLines, fmt.Sprintf("line %d", i))
	}
	afterLines[0] = "changed first"
	afterLines[29] = "changed last"

	b := NewBuilder()
	diff := b.Unified("f.txt", strings.Join(beforeLines, "\n")+"\n", strings.Join(afterLines, "\n")+"\n")
	require.Equal(t, 2, strings.Count(diff, "@@ -"))
}

func TestBuildPreservesInputOrder(t *testing.T) {
	reader := &fakeReader{files: map[string]string{
		"a.txt": "a\n",
		"b.txt": "b\n",
	}}
	changes := []FileChange{
		{Filename: "b.txt", NewContent: "b changed\n"},
		{Filename: "a.txt", NewContent: "a changed\n"},
		{Filename: "new.txt", NewContent: "fresh\n"},
	}

	patches := NewBuilder().Build(context.Background(), reader, changes)
	require.Len(t, patches, 3)
	require.Equal(t, "b.txt", patches[0].Filename)
	require.Equal(t, "a.txt", patches[1].Filename)
	require.Equal(t, "new.txt", patches[2].Filename)
	require.Contains(t, patches[2].Patch, "+fresh")
}

func TestBuildEmbedsPerFileErrorsWithoutAbortingBatch(t *testing.T) {
	reader := &fakeReader{
		files: map[string]string{"good.txt": "ok\n"},
		errs:  map[string]error{"bad.txt": errors.New("disk exploded")},
	}
	changes := []FileChange{
		{Filename: "bad.txt", NewContent: "proposed body\n"},
		{Filename: "good.txt", NewContent: "ok changed\n"},
	}

	patches := NewBuilder().Build(context.Background(), reader, changes)
	require.Len(t, patches, 2)
	require.Contains(t, patches[0].Patch, "Error generating patch for bad.txt")
	require.Contains(t, patches[0].Patch, "disk exploded")
	require.Contains(t, patches[0].Patch, "proposed body")
	require.Contains(t, patches[1].Patch, "+ok changed")
}

func TestBuildMissingOriginalTreatedAsNewFile(t *testing.T) {
	reader := &fakeReader{files: map[string]string{}}
	patches := NewBuilder().Build(context.Background(), reader, []FileChange{
		{Filename: "created.go", NewContent: "package created\n"},
	})

	require.Len(t, patches, 1)
	require.Contains(t, patches[0].Patch, "@@ -0,0 +1,1 @@")
	require.NotContains(t, patches[0].Patch, "Error generating patch")
}
