package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLToText_Paragraphs(t *testing.T) {
	text, err := HTMLToText("<p>first</p><p>second</p>")
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", text)
}

func TestHTMLToText_LineBreaks(t *testing.T) {
	text, err := HTMLToText("one<br>two")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", text)
}

func TestHTMLToText_ListItems(t *testing.T) {
	text, err := HTMLToText("<ul><li>alpha</li><li>beta</li></ul>")
	require.NoError(t, err)
	assert.Contains(t, text, "- alpha")
	assert.Contains(t, text, "- beta")
}

func TestHTMLToText_LinksKeepTarget(t *testing.T) {
	text, err := HTMLToText(`<p>see <a href="https://example.com/doc">the doc</a></p>`)
	require.NoError(t, err)
	assert.Equal(t, "see the doc [https://example.com/doc]", text)
}

func TestHTMLToText_MailtoLinksDropTarget(t *testing.T) {
	text, err := HTMLToText(`<a href="mailto:a@b.c">Alice</a>`)
	require.NoError(t, err)
	assert.Equal(t, "Alice", text)
}

func TestHTMLToText_StripsScriptAndStyle(t *testing.T) {
	text, err := HTMLToText(`<style>p{color:red}</style><p>visible</p><script>alert(1)</script>`)
	require.NoError(t, err)
	assert.Equal(t, "visible", text)
}

func TestHTMLToText_EmptyInput(t *testing.T) {
	text, err := HTMLToText("   ")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestHTMLToText_CollapsesBlankRuns(t *testing.T) {
	text, err := HTMLToText("<div>a</div><div></div><div></div><div>b</div>")
	require.NoError(t, err)
	assert.NotContains(t, text, "\n\n\n")
}
