package extractor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title> Sign up </title><style>body { color: red }</style></head>
<body>
  <h1>Welcome</h1>
  <script>var hidden = "secret";</script>
  <p>First   paragraph</p>
  <form action="/register" method="post">
    <input type="email" name="email" placeholder="you@example.com" required>
    <input type="password" name="password" required>
    <select name="plan"><option>free</option></select>
    <button type="submit">Create account</button>
  </form>
  <div>
    <button>Open menu</button>
    <input type="button" value="  Help ">
  </div>
  <a href="/about">About us</a>
  <a href="https://other.example/">Elsewhere</a>
  <textarea name="notes"></textarea>
</body>
</html>`

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtract(t *testing.T) {
	page, err := Extract(samplePage)
	require.NoError(t, err)

	assert.Equal(t, "Sign up", page.Title)
	assert.Contains(t, page.Content, "First paragraph")
	assert.NotContains(t, page.Content, "secret")
	assert.NotContains(t, page.Content, "color: red")

	require.Len(t, page.Forms, 1)
	form := page.Forms[0]
	assert.Equal(t, "/register", form.Action)
	assert.Equal(t, "POST", form.Method)
	require.Len(t, form.Inputs, 3)
	assert.Equal(t, "email", form.Inputs[0].Type)
	assert.True(t, form.Inputs[0].Required)
	assert.Equal(t, "you@example.com", form.Inputs[0].Placeholder)
	assert.Equal(t, "select", form.Inputs[2].Type)

	require.Len(t, page.Buttons, 3)
	assert.Equal(t, "submit", page.Buttons[0].Type)
	assert.Equal(t, "Create account", page.Buttons[0].Text)
	assert.Equal(t, "button", page.Buttons[1].Type, "type defaults to button")
	assert.Equal(t, "Help", page.Buttons[2].Text)

	require.Len(t, page.Links, 2)
	assert.Equal(t, "/about", page.Links[0].Href)
	assert.Equal(t, "About us", page.Links[0].Text)

	// email, password, select, input[type=button] excluded, textarea
	require.Len(t, page.Inputs, 4)
	assert.Equal(t, "textarea", page.Inputs[3].Type)
}

func TestSelectorsResolveToTheirElement(t *testing.T) {
	page, err := Extract(samplePage)
	require.NoError(t, err)
	doc := parse(t, samplePage)

	var selectors []string
	selectors = append(selectors, page.Forms[0].Selector)
	for _, b := range page.Buttons {
		selectors = append(selectors, b.Selector)
	}
	for _, l := range page.Links {
		selectors = append(selectors, l.Selector)
	}
	for _, in := range page.Inputs {
		selectors = append(selectors, in.Selector)
	}

	seen := map[string]bool{}
	for _, sel := range selectors {
		assert.Equal(t, 1, doc.Find(sel).Length(), sel)
		assert.False(t, seen[sel], "selector %q is not unique", sel)
		seen[sel] = true
	}

	assert.Equal(t, "About us", strings.TrimSpace(doc.Find(page.Links[0].Selector).Text()))
	assert.True(t, strings.HasPrefix(page.Links[0].Selector, "html > body:nth-of-type(1) > a:nth-of-type(1)"))
}

func TestExtractCaps(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body><p>")
	b.WriteString(strings.Repeat("é", MaxContentRunes+100))
	b.WriteString("</p>")
	for i := 0; i < MaxLinks+20; i++ {
		fmt.Fprintf(&b, `<a href="/p%d">p%d</a>`, i, i)
	}
	b.WriteString("</body></html>")

	page, err := Extract(b.String())
	require.NoError(t, err)
	assert.Len(t, page.Links, MaxLinks)
	assert.Equal(t, "/p0", page.Links[0].Href)
	assert.LessOrEqual(t, len([]rune(page.Content)), MaxContentRunes)
}

func TestExtractEmptyDocument(t *testing.T) {
	page, err := Extract("")
	require.NoError(t, err)
	assert.Empty(t, page.Title)
	assert.Empty(t, page.Forms)
	assert.NotNil(t, page.Links)
}
