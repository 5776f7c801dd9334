package mailmerge

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nsW = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// template builds a minimal package with body as the document body and an
// extra footer part.
func template(t *testing.T, body, footer string) *Document {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		documentPart: `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<w:document xmlns:w="` + nsW + `"><w:body>` + body + `<w:sectPr/></w:body></w:document>`,
		"word/footer1.xml": `<w:ftr xmlns:w="` + nsW + `">` + footer + `</w:ftr>`,
		"word/styles.xml":  `<w:styles xmlns:w="` + nsW + `"/>`,
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	d, err := Read(buf.Bytes())
	require.NoError(t, err)
	return d
}

func reopen(t *testing.T, d *Document) *Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "merged.docx")
	require.NoError(t, d.Save(path))
	out, err := Open(path)
	require.NoError(t, err)
	return out
}

// paragraphs returns the visible text of each paragraph of part.
func paragraphs(t *testing.T, d *Document, part string) []string {
	t.Helper()
	dec := xml.NewDecoder(bytes.NewReader(d.parts[part]))
	var (
		out  []string
		para *strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Space != nsW {
				continue
			}
			switch el.Name.Local {
			case "p":
				para = &strings.Builder{}
			case "t":
				var s string
				require.NoError(t, dec.DecodeElement(&s, &el))
				para.WriteString(s)
			case "br":
				para.WriteString("\n")
			case "tab":
				para.WriteString("\t")
			}
		case xml.EndElement:
			if el.Name.Space == nsW && el.Name.Local == "p" {
				out = append(out, para.String())
			}
		}
	}
}

func TestMerge(t *testing.T) {
	d := template(t,
		`<w:p><w:r><w:t xml:space="preserve">Dear </w:t></w:r>`+
			`<w:fldSimple w:instr=" MERGEFIELD  FirstName \* MERGEFORMAT "><w:r><w:rPr><w:b/></w:rPr><w:t>«FirstName»</w:t></w:r></w:fldSimple></w:p>`+
			`<w:p><w:r><w:rPr><w:i/></w:rPr><w:fldChar w:fldCharType="begin"/></w:r>`+
			`<w:r><w:instrText xml:space="preserve"> MERGEFIELD &quot;Case Id&quot; </w:instrText></w:r>`+
			`<w:r><w:fldChar w:fldCharType="separate"/></w:r>`+
			`<w:r><w:t>«Case Id»</w:t></w:r>`+
			`<w:r><w:fldChar w:fldCharType="end"/></w:r>`+
			`<w:r><w:t xml:space="preserve"> / </w:t></w:r>`+
			`<w:fldSimple w:instr=" MERGEFIELD Untouched "><w:r><w:t>«Untouched»</w:t></w:r></w:fldSimple></w:p>`,
		`<w:p><w:fldSimple w:instr=" MERGEFIELD Analyst "><w:r><w:t>«Analyst»</w:t></w:r></w:fldSimple></w:p>`,
	)

	assert.Equal(t, []string{"Analyst", "Case Id", "FirstName", "Untouched"}, d.MergeFields())

	replaced := d.Merge(map[string]string{
		"FirstName": "Ada & co",
		"Case Id":   "INC-7",
		"Analyst":   "j.doe\ttier 2",
		"Unused":    "x",
	})
	assert.Equal(t, 3, replaced)

	d = reopen(t, d)
	assert.Equal(t, []string{"Dear Ada & co", "INC-7 / «Untouched»"}, paragraphs(t, d, documentPart))
	assert.Equal(t, []string{"j.doe\ttier 2"}, paragraphs(t, d, "word/footer1.xml"))

	doc := string(d.parts[documentPart])
	assert.Contains(t, doc, `<w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">Ada &amp; co</w:t></w:r>`)
	assert.Contains(t, doc, `<w:r><w:rPr><w:i/></w:rPr><w:t xml:space="preserve">INC-7</w:t></w:r>`)
	assert.Equal(t, []string{"Untouched"}, d.MergeFields())

	// parts without fields are written back as read
	assert.Equal(t, `<w:styles xmlns:w="`+nsW+`"/>`, string(d.parts["word/styles.xml"]))
}

func TestMergeMultilineValue(t *testing.T) {
	d := template(t,
		`<w:p><w:fldSimple w:instr=" MERGEFIELD Notes "><w:r><w:t>«Notes»</w:t></w:r></w:fldSimple></w:p>`, "")

	require.Equal(t, 1, d.Merge(map[string]string{"Notes": "first\r\nsecond"}))
	assert.Equal(t, []string{"first\nsecond"}, paragraphs(t, d, documentPart))
}

func TestMergeFieldName(t *testing.T) {
	tests := map[string]string{
		" MERGEFIELD Name ":                  "Name",
		"MERGEFIELD Name \\* MERGEFORMAT":    "Name",
		` mergefield "Full Name" \* Upper `: "Full Name",
		` MERGEFIELD "Quoted" `:             "Quoted",
	}
	for instr, want := range tests {
		name, ok := mergeFieldName(instr)
		assert.True(t, ok, instr)
		assert.Equal(t, want, name, instr)
	}

	for _, instr := range []string{"", " PAGE ", " MERGEFIELD "} {
		_, ok := mergeFieldName(instr)
		assert.False(t, ok, instr)
	}
}

func TestReadRejectsNonDocx(t *testing.T) {
	_, err := Read([]byte("plain text"))
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = Open(filepath.Join(t.TempDir(), "missing.docx"))
	assert.True(t, os.IsNotExist(err))
}
