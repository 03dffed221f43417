package extractor

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	ErrParse = errors.New("error parsing status page")

	// integer or decimal numbers directly followed by a percent sign
	percentRegexp = regexp.MustCompile(`\b\d+%|\b\d+\.\d+%`)
)

// VisibleText returns the concatenated text nodes of an HTML document in document order,
// skipping script, style and template contents.
func VisibleText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", errors.Wrap(ErrParse, err.Error())
	}

	var sb strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Template:
				return
			}
		}

		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return sb.String(), nil
}

// PercentTokens returns the percentage shaped tokens of text in order, e.g. "75%" or "12.5%".
func PercentTokens(text string) []string {
	return percentRegexp.FindAllString(text, -1)
}

// ResolveFractions maps tokens to consumable fractions using the model indexes.
//
// An index that is nil, out of range or not numeric yields an absent value.
func ResolveFractions(tokens []string, indexes model.ConsumableIndexes) model.Fractions {
	return model.Fractions{
		Toner:   tokenFraction(tokens, indexes.Toner),
		Kit:     tokenFraction(tokens, indexes.Kit),
		Imaging: tokenFraction(tokens, indexes.Imaging),
	}
}

func tokenFraction(tokens []string, index *int) *float64 {
	if index == nil || *index < 0 || *index >= len(tokens) {
		return nil
	}

	value, err := strconv.ParseFloat(strings.TrimSuffix(tokens[*index], "%"), 64)
	if err != nil {
		return nil
	}

	fraction := value / 100

	return &fraction
}
