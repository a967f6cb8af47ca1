package walker

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"testing"

	"github.com/treemirror/treemirror/internal/drive"
)

// fakeClient serves a static tree with configurable page size and
// per-folder listing failures.
type fakeClient struct {
	children map[string][]drive.Item // folderID -> children
	pageSize int
	fail     map[string]error // folderID -> listing error
	calls    int              // ListChildren invocations, pages included
}

func (f *fakeClient) ListChildren(ctx context.Context, folderID, pageToken string) (*drive.Page, error) {
	f.calls++
	if err, ok := f.fail[folderID]; ok {
		return nil, err
	}

	items := f.children[folderID]
	size := f.pageSize
	if size <= 0 {
		size = len(items)
	}

	offset := 0
	if pageToken != "" {
		var err error
		offset, err = strconv.Atoi(pageToken)
		if err != nil {
			return nil, fmt.Errorf("bad page token %q", pageToken)
		}
	}

	end := offset + size
	if end > len(items) {
		end = len(items)
	}

	page := &drive.Page{Items: items[offset:end]}
	if end < len(items) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeClient) GetNode(ctx context.Context, id string) (*drive.Item, error) {
	return nil, fmt.Errorf("not implemented")
}

func folder(id, name string) drive.Item {
	return drive.Item{ID: id, Name: name, MimeType: "application/vnd.google-apps.folder"}
}

func file(id, name string) drive.Item {
	return drive.Item{ID: id, Name: name, MimeType: "text/plain"}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// testTree builds root/A/a.txt, root/A/B/b.mp4, root/C/c.txt.
func testTree() map[string][]drive.Item {
	return map[string][]drive.Item{
		"root": {folder("A", "A"), folder("C", "C")},
		"A":    {file("a", "a.txt"), folder("B", "B")},
		"B":    {file("b", "b.mp4")},
		"C":    {file("c", "c.txt")},
	}
}

func TestWalk_FullTree(t *testing.T) {
	client := &fakeClient{children: testTree()}
	w := New(client, 5, quietLogger())

	result, err := w.Walk(context.Background(), "root")
	if err != nil {
		t.Fatalf("Walk() failed: %v", err)
	}

	if len(result.Nodes) != 6 {
		t.Fatalf("Walk() found %d nodes, want 6", len(result.Nodes))
	}
	if len(result.Errors) != 0 {
		t.Errorf("Walk() reported %d errors, want 0", len(result.Errors))
	}

	depths := make(map[string]int)
	parents := make(map[string]string)
	for _, d := range result.Nodes {
		depths[d.Item.ID] = d.Depth
		parents[d.Item.ID] = d.ParentRemoteID
	}

	if depths["A"] != 0 || depths["a"] != 1 || depths["b"] != 2 {
		t.Errorf("unexpected depths: %v", depths)
	}
	if parents["b"] != "B" || parents["B"] != "A" {
		t.Errorf("unexpected parents: %v", parents)
	}
}

func TestWalk_Pagination(t *testing.T) {
	// 5 children with page size 2 -> 3 pages for the root listing.
	many := make([]drive.Item, 0, 5)
	for i := 0; i < 5; i++ {
		many = append(many, file(fmt.Sprintf("f%d", i), fmt.Sprintf("f%d.txt", i)))
	}

	client := &fakeClient{
		children: map[string][]drive.Item{"root": many},
		pageSize: 2,
	}
	w := New(client, 5, quietLogger())

	result, err := w.Walk(context.Background(), "root")
	if err != nil {
		t.Fatalf("Walk() failed: %v", err)
	}

	if len(result.Nodes) != 5 {
		t.Errorf("Walk() found %d nodes, want 5 (pages not accumulated?)", len(result.Nodes))
	}
	if client.calls != 3 {
		t.Errorf("ListChildren called %d times, want 3", client.calls)
	}
}

func TestWalk_MaxDepthPrunesContentsNotFolder(t *testing.T) {
	client := &fakeClient{children: testTree()}
	// maxDepth 1: children of root (depth 0) and their children
	// (depth 1) are listed; B's contents (depth 2) are pruned.
	w := New(client, 1, quietLogger())

	result, err := w.Walk(context.Background(), "root")
	if err != nil {
		t.Fatalf("Walk() failed: %v", err)
	}

	found := make(map[string]bool)
	for _, d := range result.Nodes {
		found[d.Item.ID] = true
	}

	if !found["B"] {
		t.Error("folder at depth boundary was not yielded")
	}
	if found["b"] {
		t.Error("contents beyond maxDepth were not pruned")
	}
}

func TestWalk_BranchFailureSkipsSubtreeOnly(t *testing.T) {
	client := &fakeClient{
		children: testTree(),
		fail:     map[string]error{"A": fmt.Errorf("boom")},
	}
	w := New(client, 5, quietLogger())

	result, err := w.Walk(context.Background(), "root")
	if err != nil {
		t.Fatalf("Walk() failed: %v", err)
	}

	if len(result.Errors) != 1 {
		t.Fatalf("Walk() reported %d errors, want 1", len(result.Errors))
	}
	if result.Errors[0].FolderID != "A" {
		t.Errorf("error recorded for folder %s, want A", result.Errors[0].FolderID)
	}

	found := make(map[string]bool)
	for _, d := range result.Nodes {
		found[d.Item.ID] = true
	}

	// A itself was yielded (listed under root); its contents were not.
	if !found["A"] {
		t.Error("failed folder missing from results")
	}
	if found["a"] || found["b"] {
		t.Error("contents of the failed branch were yielded")
	}
	// The sibling branch kept going.
	if !found["C"] || !found["c"] {
		t.Error("sibling branch was not traversed after a failure")
	}
}

func TestWalk_ContextCancellation(t *testing.T) {
	client := &fakeClient{children: testTree()}
	w := New(client, 5, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := w.Walk(ctx, "root")
	if err == nil {
		t.Fatal("Walk() ignored cancelled context")
	}
	if result == nil {
		t.Fatal("Walk() returned nil result on cancellation")
	}
}
