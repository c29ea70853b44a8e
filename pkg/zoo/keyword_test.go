package zoo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ucp-project/ucp/pkg/ucp"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"camelCase", "listDirectory", []string{"list", "directory"}},
		{"snake_case", "list_directory", []string{"list", "directory"}},
		{"mixed punctuation", "fs.list_directory!", []string{"fs", "list", "directory"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tokenize(tt.input)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func testTool(name, server, description string, tags ...string) indexedTool {
	return indexedTool{schema: ucp.ToolSchema{Name: name, ServerName: server, Description: description, Tags: tags}}
}

func TestKeywordIndex_Score(t *testing.T) {
	t.Parallel()

	tools := []indexedTool{
		testTool("fs.list_directory", "fs", "List files in a directory", "files"),
		testTool("gh.create_issue", "gh", "Create a GitHub issue", "github", "issues"),
	}
	idx := newKeywordIndex(tools)

	scores := idx.score("list directory files")
	assert.Greater(t, scores["fs.list_directory"], scores["gh.create_issue"])

	empty := idx.score("")
	assert.Empty(t, empty)

	noMatch := idx.score("zzz_nonexistent_token")
	assert.Empty(t, noMatch)
}

func TestKeywordIndex_FieldWeights(t *testing.T) {
	t.Parallel()

	// "widget" appears only in the name of one tool and only in the
	// description of another; the name match should score higher.
	tools := []indexedTool{
		testTool("widget.create", "widget", "make a thing"),
		testTool("other.tool", "other", "does something with a widget"),
	}
	idx := newKeywordIndex(tools)

	scores := idx.score("widget")
	assert.Greater(t, scores["widget.create"], scores["other.tool"])
}
