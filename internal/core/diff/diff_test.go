package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `diff --git a/main.go b/main.go
index 1111111..2222222 100644
--- a/main.go
+++ b/main.go
@@ -1,3 +1,4 @@
 package main
 
-func main() {}
+func main() {
+}
diff --git a/docs/new.md b/docs/new.md
new file mode 100644
index 0000000..3333333
--- /dev/null
+++ b/docs/new.md
@@ -0,0 +1,2 @@
+# New
+text
diff --git a/old.txt b/old.txt
deleted file mode 100644
index 4444444..0000000
--- a/old.txt
+++ /dev/null
@@ -1 +0,0 @@
-bye
diff --git a/a.go b/b.go
similarity index 100%
rename from a.go
rename to b.go
`

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	tests := []struct {
		path      string
		oldPath   string
		change    Change
		additions int
		deletions int
	}{
		{path: "main.go", change: ChangeModified, additions: 2, deletions: 1},
		{path: "docs/new.md", change: ChangeAdded, additions: 2},
		{path: "old.txt", change: ChangeDeleted, deletions: 1},
		{path: "b.go", oldPath: "a.go", change: ChangeRenamed},
	}

	for i, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := entries[i]
			assert.Equal(t, tt.path, got.Path)
			assert.Equal(t, tt.oldPath, got.OldPath)
			assert.Equal(t, tt.change, got.Change)
			assert.Equal(t, tt.additions, got.Additions)
			assert.Equal(t, tt.deletions, got.Deletions)
		})
	}

	assert.Contains(t, entries[0].Content, "+func main() {")
}

func TestParse_Empty(t *testing.T) {
	entries, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
