package outlook

import (
	"strings"

	"golang.org/x/net/html"
)

// blockTags end the current line when opened or closed.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "tr": true, "li": true, "hr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "table": true, "ul": true, "ol": true, "pre": true,
}

// skipTags have content that is never rendered.
var skipTags = map[string]bool{
	"script": true, "style": true, "head": true, "title": true,
}

// HTMLToText reduces an HTML body to plain text, one line per block element.
// Quoted header blocks ("From: ... Sent: ...") survive as separate lines.
func HTMLToText(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))

	var (
		b    strings.Builder
		line strings.Builder
		skip int
	)
	// flush ends the current line. An empty line is kept only for <br>.
	flush := func(keepEmpty bool) {
		text := strings.Join(strings.Fields(line.String()), " ")
		line.Reset()
		if text == "" && !keepEmpty {
			return
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}

	for {
		switch z.Next() {
		case html.ErrorToken:
			flush(false)
			return tidyLines(b.String())

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] {
				skip++
				continue
			}
			if blockTags[tag] {
				flush(tag == "br")
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] {
				if skip > 0 {
					skip--
				}
				continue
			}
			if blockTags[tag] {
				flush(false)
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			line.WriteString(string(z.Text()))
			line.WriteByte(' ')
		}
	}
}

// tidyLines collapses runs of blank lines to one and trims the ends.
func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
