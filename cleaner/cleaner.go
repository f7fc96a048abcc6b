package cleaner

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/pageready/models"
)

// Output formats.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
	FormatText     = "text"
	FormatArticle  = "article"
)

// Cleaner converts captured documents into the requested output format.
// The markdown converter is created once and shared (goroutine-safe).
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner initialises the Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{
		mdConverter: newMarkdownConverter(),
	}
}

// Output is a formatted document.
type Output struct {
	Content string
	Title   string
}

// Format converts rawHTML, captured from sourceURL, into format. A non-empty
// selector first narrows the document to the matching elements.
//
// "html" returns the captured document unchanged, so the delivered bytes are
// exactly what the page serialized.
func (c *Cleaner) Format(rawHTML, sourceURL, format, selector string) (*Output, error) {
	title := Title(rawHTML)

	if selector != "" {
		filtered, err := ApplyCSSSelector(rawHTML, selector)
		if err != nil {
			return nil, models.NewRenderError(
				models.ErrCodeInvalidInput,
				fmt.Sprintf("invalid css_selector %q", selector),
				err,
			)
		}
		rawHTML = filtered
	}

	var content string
	switch format {
	case FormatHTML, "":
		content = rawHTML
	case FormatMarkdown:
		md, err := ToMarkdown(c.mdConverter, rawHTML, sourceURL)
		if err != nil {
			return nil, models.NewRenderError(models.ErrCodeFormat, "markdown conversion failed", err)
		}
		content = md
	case FormatText:
		text, err := ToText(rawHTML)
		if err != nil {
			return nil, models.NewRenderError(models.ErrCodeFormat, "text extraction failed", err)
		}
		content = text
	case FormatArticle:
		article, ok := ExtractContent(rawHTML, sourceURL)
		if ok && article.Title != "" {
			title = article.Title
		}
		md, err := ToMarkdown(c.mdConverter, article.Content, sourceURL)
		if err != nil {
			return nil, models.NewRenderError(models.ErrCodeFormat, "markdown conversion failed", err)
		}
		content = md
	default:
		return nil, models.NewRenderError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown output_format %q", format),
			nil,
		)
	}

	return &Output{Content: content, Title: title}, nil
}

const blockElements = "address, article, aside, blockquote, br, dd, div, dl, dt, figcaption, " +
	"footer, h1, h2, h3, h4, h5, h6, header, hr, li, main, nav, ol, p, pre, section, table, td, th, tr, ul"

// Title returns the trimmed document title, or "" if there is none.
func Title(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// ToText returns the visible text of the body, one line per block, with
// scripts and styles removed.
func ToText(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, template").Remove()
	doc.Find(blockElements).AfterHtml("\n")

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var lines []string
	for _, line := range strings.Split(root.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
