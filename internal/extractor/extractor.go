// Package extractor turns an HTML snapshot of a loaded page into a PageRecord.
package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/crawltest-service/internal/entity"
)

const (
	MaxContentRunes = 5000
	MaxLinks        = 50
)

// Extract parses htmlContent and collects title, visible text, forms,
// buttons, links and inputs. Selectors are structural paths that resolve to
// the same element for as long as the document is unchanged.
func Extract(htmlContent string) (*entity.PageRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	page := &entity.PageRecord{
		Title:   strings.TrimSpace(doc.Find("title").First().Text()),
		Forms:   []entity.FormData{},
		Buttons: []entity.ButtonData{},
		Links:   []entity.LinkData{},
		Inputs:  []entity.InputData{},
	}

	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		form := entity.FormData{
			Selector: Selector(s),
			Action:   attr(s, "action"),
			Method:   strings.ToUpper(attr(s, "method")),
			Inputs:   []entity.InputData{},
		}
		if form.Method == "" {
			form.Method = "GET"
		}
		s.Find("input, select, textarea").Each(func(_ int, in *goquery.Selection) {
			if data, ok := inputData(in); ok {
				form.Inputs = append(form.Inputs, data)
			}
		})
		page.Forms = append(page.Forms, form)
	})

	doc.Find("button, input[type=submit], input[type=button]").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if goquery.NodeName(s) == "input" {
			text = attr(s, "value")
		}
		btnType := strings.ToLower(attr(s, "type"))
		if btnType == "" {
			btnType = "button"
		}
		page.Buttons = append(page.Buttons, entity.ButtonData{
			Selector: Selector(s),
			Text:     collapse(text),
			Type:     btnType,
		})
	})

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(page.Links) >= MaxLinks {
			return false
		}
		page.Links = append(page.Links, entity.LinkData{
			Selector: Selector(s),
			Text:     collapse(s.Text()),
			Href:     attr(s, "href"),
		})
		return true
	})

	doc.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		if data, ok := inputData(s); ok {
			page.Inputs = append(page.Inputs, data)
		}
	})

	// Content last: removing script and style nodes must not shift the selectors above.
	doc.Find("script, style, noscript").Remove()
	page.Content = truncateRunes(collapse(doc.Find("body").Text()), MaxContentRunes)

	return page, nil
}

func inputData(s *goquery.Selection) (entity.InputData, bool) {
	tag := goquery.NodeName(s)
	inputType := tag
	if tag == "input" {
		inputType = strings.ToLower(attr(s, "type"))
		if inputType == "" {
			inputType = "text"
		}
		if inputType == "submit" || inputType == "button" {
			return entity.InputData{}, false
		}
	}
	_, required := s.Attr("required")
	return entity.InputData{
		Selector:    Selector(s),
		Type:        inputType,
		Name:        attr(s, "name"),
		Placeholder: attr(s, "placeholder"),
		Required:    required,
	}, true
}

// Selector builds "html > body:nth-of-type(1) > div:nth-of-type(2) > ..." for the first node of s.
func Selector(s *goquery.Selection) string {
	var parts []string
	for cur := s.First(); cur.Length() > 0; cur = cur.Parent() {
		tag := goquery.NodeName(cur)
		if tag == "" || strings.HasPrefix(tag, "#") {
			break
		}
		if tag == "html" {
			parts = append(parts, tag)
			break
		}
		index := cur.PrevAllFiltered(tag).Length() + 1
		parts = append(parts, fmt.Sprintf("%s:nth-of-type(%d)", tag, index))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func attr(s *goquery.Selection, name string) string {
	return strings.TrimSpace(s.AttrOr(name, ""))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
