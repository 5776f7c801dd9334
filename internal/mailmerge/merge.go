package mailmerge

import (
	"encoding/xml"
	"regexp"
	"sort"
	"strings"
)

var (
	simpleFieldPattern = regexp.MustCompile(`(?s)<w:fldSimple\b([^>]*?)(?:/>|>(.*?)</w:fldSimple>)`)
	instrAttrPattern   = regexp.MustCompile(`w:instr="([^"]*)"`)
	fldCharPattern     = regexp.MustCompile(`<w:fldChar\b[^>]*w:fldCharType="(begin|separate|end)"[^>]*>`)
	instrTextPattern   = regexp.MustCompile(`(?s)<w:instrText\b[^>]*>(.*?)</w:instrText>`)
	runPropsPattern    = regexp.MustCompile(`(?s)<w:rPr>.*?</w:rPr>`)

	attrUnescaper = strings.NewReplacer("&quot;", `"`, "&#34;", `"`, "&apos;", "'", "&#39;", "'", "&lt;", "<", "&gt;", ">", "&amp;", "&")
)

// span is one merge field occurrence inside a part.
type span struct {
	start, end int
	name       string
	rPr        string
}

// MergeFields lists the distinct MERGEFIELD names of the document body,
// headers and footers, sorted.
func (d *Document) MergeFields() []string {
	seen := map[string]bool{}
	for _, name := range d.mergeableParts() {
		for _, s := range findFields(string(d.parts[name])) {
			seen[s.name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge replaces every MERGEFIELD named in values by a plain run holding the
// value, keeping the field's character formatting. Fields absent from
// values are left untouched. It returns the number of fields replaced.
func (d *Document) Merge(values map[string]string) int {
	replaced := 0
	for _, name := range d.mergeableParts() {
		part := string(d.parts[name])
		var b strings.Builder
		last := 0
		for _, s := range findFields(part) {
			value, ok := values[s.name]
			if !ok || s.start < last {
				continue
			}
			b.WriteString(part[last:s.start])
			b.WriteString(textRun(value, s.rPr))
			last = s.end
			replaced++
		}
		if last == 0 {
			continue
		}
		b.WriteString(part[last:])
		d.parts[name] = []byte(b.String())
	}
	return replaced
}

func (d *Document) mergeableParts() []string {
	var parts []string
	for _, name := range d.names {
		switch {
		case name == documentPart,
			strings.HasPrefix(name, "word/header") && strings.HasSuffix(name, ".xml"),
			strings.HasPrefix(name, "word/footer") && strings.HasSuffix(name, ".xml"):
			parts = append(parts, name)
		}
	}
	return parts
}

// findFields returns the merge fields of part in document order, both the
// w:fldSimple form and the begin/separate/end run sequence form. Complex
// fields spanning paragraphs or nesting other fields are skipped.
func findFields(part string) []span {
	var spans []span

	for _, m := range simpleFieldPattern.FindAllStringSubmatchIndex(part, -1) {
		attrs := part[m[2]:m[3]]
		instr := instrAttrPattern.FindStringSubmatch(attrs)
		if instr == nil {
			continue
		}
		name, ok := mergeFieldName(attrUnescaper.Replace(instr[1]))
		if !ok {
			continue
		}
		var rPr string
		if m[4] >= 0 {
			rPr = runPropsPattern.FindString(part[m[4]:m[5]])
		}
		spans = append(spans, span{start: m[0], end: m[1], name: name, rPr: rPr})
	}

	depth, begin, nested := 0, -1, false
	for _, m := range fldCharPattern.FindAllStringSubmatchIndex(part, -1) {
		switch part[m[2]:m[3]] {
		case "begin":
			depth++
			if depth == 1 {
				begin, nested = m[0], false
			} else {
				nested = true
			}
		case "end":
			if depth == 0 {
				continue
			}
			depth--
			if depth > 0 || nested {
				continue
			}
			if s, ok := complexField(part, begin, m[1]); ok {
				spans = append(spans, s)
			}
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	return spans
}

// complexField resolves the runs around a begin..end fldChar pair.
func complexField(part string, begin, end int) (span, bool) {
	start := max(strings.LastIndex(part[:begin], "<w:r>"), strings.LastIndex(part[:begin], "<w:r "))
	closeRun := strings.Index(part[end:], "</w:r>")
	if start < 0 || closeRun < 0 {
		return span{}, false
	}
	stop := end + closeRun + len("</w:r>")

	segment := part[start:stop]
	if strings.Contains(segment, "</w:p>") {
		return span{}, false
	}

	var instr strings.Builder
	for _, m := range instrTextPattern.FindAllStringSubmatch(segment, -1) {
		instr.WriteString(m[1])
	}
	name, ok := mergeFieldName(attrUnescaper.Replace(instr.String()))
	if !ok {
		return span{}, false
	}
	return span{
		start: start,
		end:   stop,
		name:  name,
		rPr:   runPropsPattern.FindString(part[start:begin]),
	}, true
}

// mergeFieldName parses ` MERGEFIELD  name \* MERGEFORMAT `.
func mergeFieldName(instr string) (string, bool) {
	fields := strings.Fields(instr)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "MERGEFIELD") {
		return "", false
	}
	name := strings.Trim(fields[1], `"`)
	if strings.HasPrefix(fields[1], `"`) && !strings.HasSuffix(fields[1], `"`) {
		// quoted names may contain spaces
		rest := strings.TrimSpace(instr[strings.Index(instr, `"`)+1:])
		if i := strings.Index(rest, `"`); i >= 0 {
			name = rest[:i]
		}
	}
	return name, name != ""
}

// textRun renders text as a single run with optional run properties.
// Newlines become line breaks and tabs become tab stops.
func textRun(text, rPr string) string {
	var b strings.Builder
	b.WriteString("<w:r>")
	b.WriteString(rPr)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		for j, chunk := range strings.Split(line, "\t") {
			if j > 0 {
				b.WriteString("<w:tab/>")
			}
			if chunk != "" {
				b.WriteString(`<w:t xml:space="preserve">`)
				_ = xml.EscapeText(&b, []byte(chunk))
				b.WriteString("</w:t>")
			}
		}
	}
	b.WriteString("</w:r>")
	return b.String()
}
