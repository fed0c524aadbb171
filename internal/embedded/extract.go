package embedded

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/payload"
)

// Pattern identifies a statement assigning embedded state and captures its right-hand side.
type Pattern struct {
	Name string
	re   *regexp.Regexp
}

var (
	// InitialData matches the watch page assignment `var ytInitialData = ...`.
	InitialData = Pattern{Name: "ytInitialData", re: regexp.MustCompile(`(?s)var\s+ytInitialData\s*=\s*(.+)`)}
	// ReplayData matches the replay page assignment `window["ytInitialData"] = ...`.
	ReplayData = Pattern{Name: `window["ytInitialData"]`, re: regexp.MustCompile(`(?s)window\["ytInitialData"\]\s*=\s*(.+)`)}
)

// Scripts returns the text of every <script> element in document order.
func Scripts(document []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", chat.ErrParse, err)
	}
	var scripts []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if text := s.Text(); text != "" {
			scripts = append(scripts, text)
		}
	})
	return scripts, nil
}

// Extract finds the first statement matching pattern across the document's scripts
// and decodes the first JSON value of its right-hand side. Scripts that fail to tokenize are skipped.
func Extract(document []byte, pattern Pattern) (payload.Value, error) {
	scripts, err := Scripts(document)
	if err != nil {
		return payload.Value{}, err
	}
	for _, script := range scripts {
		statements, err := SplitStatements(script)
		if err != nil {
			continue
		}
		for _, stmt := range statements {
			m := pattern.re.FindStringSubmatch(stmt)
			if m == nil {
				continue
			}
			value, err := payload.ParsePrefix([]byte(m[1]))
			if err != nil {
				return payload.Value{}, fmt.Errorf("decode %s: %w", pattern.Name, err)
			}
			return value, nil
		}
	}
	return payload.Value{}, fmt.Errorf("%w: %s not found in %d scripts", chat.ErrParse, pattern.Name, len(scripts))
}
