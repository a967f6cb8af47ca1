package reconcile

import (
	"io"
	"log"
	"testing"

	"github.com/treemirror/treemirror/internal/drive"
	"github.com/treemirror/treemirror/internal/mirror"
	"github.com/treemirror/treemirror/internal/walker"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func folderItem(id, name string) drive.Item {
	return drive.Item{ID: id, Name: name, MimeType: mirror.FolderMimeType}
}

func fileItem(id, name string) drive.Item {
	return drive.Item{ID: id, Name: name, MimeType: "text/plain"}
}

// scenarioDiscovered is the walker output for the tree
// root/A/a.txt, root/A/B/b.mp4, root/C/c.txt.
func scenarioDiscovered() []walker.Discovered {
	return []walker.Discovered{
		{Item: folderItem("A", "A"), ParentRemoteID: "root", Depth: 0},
		{Item: folderItem("C", "C"), ParentRemoteID: "root", Depth: 0},
		{Item: fileItem("a", "a.txt"), ParentRemoteID: "A", Depth: 1},
		{Item: folderItem("B", "B"), ParentRemoteID: "A", Depth: 1},
		{Item: fileItem("c", "c.txt"), ParentRemoteID: "C", Depth: 1},
		{Item: drive.Item{ID: "b", Name: "b.mp4", MimeType: "video/mp4"}, ParentRemoteID: "B", Depth: 2},
	}
}

// fallbackDiscovered is a node whose parent was never discovered, so
// derivation must fall back to root attachment.
func fallbackDiscovered(id, name string) walker.Discovered {
	return walker.Discovered{Item: fileItem(id, name), ParentRemoteID: "missing", Depth: 3}
}

func TestDeriveAll_Scenario(t *testing.T) {
	root := folderItem("root", "root")
	derived := DeriveAll(root, scenarioDiscovered(), quietLogger())

	if len(derived) != 7 {
		t.Fatalf("DeriveAll() produced %d nodes, want 7", len(derived))
	}

	byID := make(map[string]Derived)
	for _, d := range derived {
		byID[d.Item.ID] = d
	}

	rootD := byID["root"]
	if !rootD.IsRoot || rootD.Path != "/root" || rootD.Depth != mirror.RootPathDepth {
		t.Errorf("root derived wrong: %+v", rootD)
	}
	if rootD.RootID != "root" {
		t.Errorf("root must own its root_id, got %s", rootD.RootID)
	}

	if got := byID["A"].Path; got != "/root/A" {
		t.Errorf("A.path = %s, want /root/A", got)
	}
	if got := byID["b"].Path; got != "/root/A/B/b.mp4" {
		t.Errorf("b.mp4 path = %s, want /root/A/B/b.mp4", got)
	}
	if got := byID["b"].Depth; got != 2 {
		t.Errorf("depth(b.mp4) = %d, want 2", got)
	}

	for id, d := range byID {
		if id == "root" {
			continue
		}
		if d.RootID != "root" {
			t.Errorf("node %s has root_id %s, want root", id, d.RootID)
		}
		if d.Strategy != ByParentChain {
			t.Errorf("node %s resolved by %s, want parent chain", id, d.Strategy)
		}
	}
}

func TestDeriveAll_PathInvariant(t *testing.T) {
	root := folderItem("root", "root")
	derived := DeriveAll(root, scenarioDiscovered(), quietLogger())

	paths := make(map[string]string) // remote id -> path
	for _, d := range derived {
		paths[d.Item.ID] = d.Path
	}

	for _, d := range derived {
		if d.IsRoot {
			continue
		}
		parentPath := paths[d.ParentRemoteID]
		if want := parentPath + "/" + d.Item.Name; d.Path != want {
			t.Errorf("path invariant broken for %s: %s != %s", d.Item.ID, d.Path, want)
		}
	}
}

func TestDeriveAll_ParentsBeforeChildren(t *testing.T) {
	root := folderItem("root", "root")
	derived := DeriveAll(root, scenarioDiscovered(), quietLogger())

	seen := make(map[string]bool)
	for _, d := range derived {
		if !d.IsRoot && !seen[d.ParentRemoteID] {
			t.Errorf("node %s appears before its parent %s", d.Item.ID, d.ParentRemoteID)
		}
		seen[d.Item.ID] = true
	}
}

func TestDeriveAll_OrphanFallback(t *testing.T) {
	root := folderItem("root", "root")
	// "stray" claims a parent that was never discovered (its branch
	// failed to list).
	discovered := append(scenarioDiscovered(),
		walker.Discovered{Item: fileItem("stray", "stray.txt"), ParentRemoteID: "missing", Depth: 3},
	)

	derived := DeriveAll(root, discovered, quietLogger())

	var stray *Derived
	for i := range derived {
		if derived[i].Item.ID == "stray" {
			stray = &derived[i]
		}
	}
	if stray == nil {
		t.Fatal("orphan dropped instead of resolved by fallback")
	}

	if stray.Strategy != ByNamePatternFallback {
		t.Errorf("orphan strategy = %s, want name pattern fallback", stray.Strategy)
	}
	if stray.Path != "/root/stray.txt" || stray.Depth != 0 || stray.RootID != "root" {
		t.Errorf("orphan placed wrong: %+v", stray)
	}
}

func TestDeriveAll_RederivesFromScratch(t *testing.T) {
	// The same remote id discovered under a new parent must get the
	// new path, regardless of anything previously stored.
	root := folderItem("root", "root")
	moved := []walker.Discovered{
		{Item: folderItem("A", "A"), ParentRemoteID: "root", Depth: 0},
		{Item: folderItem("C", "C"), ParentRemoteID: "root", Depth: 0},
		{Item: fileItem("a", "a.txt"), ParentRemoteID: "C", Depth: 1}, // was under A
	}

	derived := DeriveAll(root, moved, quietLogger())
	for _, d := range derived {
		if d.Item.ID == "a" && d.Path != "/root/C/a.txt" {
			t.Errorf("moved node path = %s, want /root/C/a.txt", d.Path)
		}
	}
}
