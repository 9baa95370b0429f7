package ingestion

import (
	"mime"
	"net/url"
	"path"
	"strings"
	"unicode"
)

// Content formats recorded in each chunk's "format" metadata.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// extensionFormats maps lowercase file extensions to a content format.
var extensionFormats = map[string]string{
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".mdx":      FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".txt":      FormatText,
	".text":     FormatText,
	".rst":      FormatText,
	".adoc":     FormatText,
}

// IsSupportedFile reports whether a directory walk should ingest name.
func IsSupportedFile(name string) bool {
	_, ok := extensionFormats[strings.ToLower(path.Ext(name))]
	return ok
}

// DetectFormat infers the content format of a source from its Content-Type,
// when one is known, and otherwise from the extension of its path or URL.
// Anything unrecognised is plain text.
func DetectFormat(location, contentType string) string {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			switch mt {
			case "text/html", "application/xhtml+xml":
				return FormatHTML
			case "text/markdown", "text/x-markdown":
				return FormatMarkdown
			}
		}
	}

	p := location
	if u, err := url.Parse(location); err == nil && u.Scheme != "" && u.Host != "" {
		p = u.Path
	}
	if f, ok := extensionFormats[strings.ToLower(path.Ext(p))]; ok {
		return f
	}
	return FormatText
}

// ExtractText returns the indexable text of raw content in format. HTML is
// reduced to its visible text; other formats pass through unchanged.
func ExtractText(format, raw string) string {
	if format != FormatHTML {
		return raw
	}
	return htmlText(raw)
}

// htmlText drops tags, comments and the bodies of script and style elements,
// decodes the common entities and collapses whitespace runs.
func htmlText(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))

	for i := 0; i < len(raw); {
		switch {
		case strings.HasPrefix(raw[i:], "<!--"):
			end := strings.Index(raw[i+4:], "-->")
			if end < 0 {
				i = len(raw)
			} else {
				i += 4 + end + 3
			}
		case raw[i] == '<':
			end := strings.IndexByte(raw[i:], '>')
			if end < 0 {
				i = len(raw)
				continue
			}
			body := strings.ToLower(raw[i+1 : i+end])
			tag := tagName(body)
			i += end + 1
			if !strings.HasPrefix(body, "/") && (tag == "script" || tag == "style") {
				closing := indexFold(raw[i:], "</"+tag)
				if closing < 0 {
					i = len(raw)
				} else {
					i += closing
				}
			}
			sb.WriteByte(' ')
		default:
			sb.WriteByte(raw[i])
			i++
		}
	}
	return collapseSpace(htmlEntities.Replace(sb.String()))
}

// tagName returns the element name of a tag body such as `div class="x"`.
func tagName(body string) string {
	body = strings.TrimPrefix(body, "/")
	end := strings.IndexFunc(body, func(r rune) bool { return unicode.IsSpace(r) || r == '/' })
	if end >= 0 {
		body = body[:end]
	}
	return body
}

// indexFold is strings.Index with ASCII case folding.
func indexFold(s, substr string) int {
	for j := 0; j+len(substr) <= len(s); j++ {
		if strings.EqualFold(s[j:j+len(substr)], substr) {
			return j
		}
	}
	return -1
}

var htmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
)

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
