package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minArticleText is the shortest TextContent accepted from readability.
const minArticleText = 50

// ExtractContent isolates the main article of a rendered page. When
// readability fails or finds too little text, the whole document is returned
// as the article and ok is false.
func ExtractContent(rawHTML string, sourceURL string) (article readability.Article, ok bool) {
	whole := readability.Article{Content: rawHTML}

	pageURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Debug("readability: bad source url", "url", sourceURL, "error", err)
		return whole, false
	}

	article, err = readability.FromReader(strings.NewReader(rawHTML), pageURL)
	if err != nil {
		slog.Warn("readability: extraction failed, using whole document", "url", sourceURL, "error", err)
		return whole, false
	}
	if n := len(strings.TrimSpace(article.TextContent)); n < minArticleText {
		slog.Debug("readability: article too short, using whole document", "url", sourceURL, "length", n)
		return whole, false
	}
	return article, true
}
