package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/internal/domain"
)

func docxFixture(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractDocx(t *testing.T) {
	data := docxFixture(t, `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t><w:tab/><w:t>line</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	got, err := New().Extract(data, "docx")
	require.NoError(t, err)
	assert.Equal(t, "Hello world.\nSecond\tline", got)
}

func TestExtractDocxWithoutDocumentPart(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = New().Extract(buf.Bytes(), "docx")
	assert.Error(t, err)
}

func TestExtractHTMLSkipsScripts(t *testing.T) {
	data := []byte(`<html><head><title>T</title><style>p{}</style></head>
<body><h1>Title</h1><p>First   paragraph.</p><script>var x = 1;</script><p>Second <b>bold</b> text.</p></body></html>`)

	got, err := New().Extract(data, ".HTML")
	require.NoError(t, err)
	assert.Equal(t, "Title\nFirst paragraph.\nSecond bold text.", got)
}

func TestExtractPlainAndMarkdown(t *testing.T) {
	got, err := New().Extract([]byte("plain text"), "txt")
	require.NoError(t, err)
	assert.Equal(t, "plain text", got)

	got, err = New().Extract([]byte("# Heading\n\nBody."), "md")
	require.NoError(t, err)
	assert.Equal(t, "# Heading\n\nBody.", got)
}

func TestExtractUnsupported(t *testing.T) {
	_, err := New().Extract([]byte("x"), "exe")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assert.False(t, Supported("exe"))
	assert.True(t, Supported("PDF"))
}

func TestExtractInvalidPDF(t *testing.T) {
	_, err := New().Extract([]byte("definitely not a pdf"), "pdf")
	assert.Error(t, err)
}
