package dom

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signupHTML = `<!doctype html>
<html lang="pt-BR">
<head><title> Signup </title></head>
<body>
<form id="signup" action="/send">
  <label for="name">Your name</label>
  <input id="name" name="name" placeholder="Ana">
  <div><label>E-mail</label><input type="EMAIL" name="email"></div>
  <input type="password" name="password">
  <input type="hidden" name="token" value="t">
  <input name="nick" style="display: none">
  <select name="plan"><option value="a">A</option><option value="b" selected>B</option></select>
  <select name="tags" multiple><option>x</option><option selected>y</option></select>
  <input type="checkbox" name="terms" value="yes" checked>
  <textarea name="msg">hello</textarea>
  <button type="submit">Send</button>
</form>
<input name="coupon" form="signup" value="C10">
<input name="search">
</body></html>`

func parseSignup(t *testing.T) *Page {
	t.Helper()
	p, err := ParseHTML(strings.NewReader(signupHTML), "https://shop.example.com/signup?utm_source=x")
	require.NoError(t, err)
	return p
}

func TestParseHTML_Document(t *testing.T) {
	p := parseSignup(t)
	assert.Equal(t, "Signup", p.Title)
	assert.Equal(t, "pt-BR", p.Language)
	assert.Equal(t, "x", p.Query().Get("utm_source"))
	require.Len(t, p.Forms(), 1)
	assert.Equal(t, "signup", p.Forms()[0].ID)
	assert.Equal(t, "/send", p.Forms()[0].Action)
}

func TestParseHTML_Controls(t *testing.T) {
	p := parseSignup(t)

	name, _ := p.Lookup("#name")
	require.NotNil(t, name)
	assert.Equal(t, "Your name", name.Label)
	assert.Equal(t, "text", name.Type)

	email, _ := p.Lookup("email")
	require.NotNil(t, email)
	assert.Equal(t, "email", email.Type)
	assert.Equal(t, "E-mail", email.Label)

	nick, _ := p.Lookup("nick")
	assert.True(t, nick.Hidden)

	plan, _ := p.Lookup("plan")
	assert.Equal(t, "select-one", plan.Type)
	assert.Equal(t, "b", plan.Value)

	tags, _ := p.Lookup("tags")
	assert.Equal(t, "select-multiple", tags.Type)
	assert.Equal(t, []string{"y"}, tags.SelectedValues())

	terms, _ := p.Lookup("terms")
	assert.True(t, terms.Checked)
	assert.Equal(t, "yes", terms.Value)

	msg, _ := p.Lookup("msg")
	assert.Equal(t, "textarea", msg.Type)
	assert.Equal(t, "hello", msg.Value)
}

func TestAssociated_IncludesExternalFormAttribute(t *testing.T) {
	p := parseSignup(t)
	form := p.Forms()[0]

	var names []string
	for _, e := range p.Associated(form) {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "coupon")
	assert.NotContains(t, names, "search")

	coupon, _ := p.Lookup("coupon")
	assert.Same(t, form, p.FormOf(coupon))
	search, _ := p.Lookup("search")
	assert.Nil(t, p.FormOf(search))
}

func TestLookup_Handles(t *testing.T) {
	p := parseSignup(t)
	form := p.Forms()[0]

	_, f := p.Lookup("#signup")
	assert.Same(t, form, f)

	e, _ := p.Lookup("@" + strconv.Itoa(p.Elements()[0].Handle))
	assert.Same(t, p.Elements()[0], e)

	e, f = p.Lookup("missing")
	assert.Nil(t, e)
	assert.Nil(t, f)
}

func TestGroup(t *testing.T) {
	p, _ := NewPage("https://x.example.com/")
	f := p.AddForm(&Form{ID: "prefs"})
	a := p.AddElement(f, &Element{Type: "checkbox", Name: "topics", Value: "go"})
	p.AddElement(f, &Element{Type: "checkbox", Name: "topics", Value: "rust"})
	p.AddElement(f, &Element{Type: "radio", Name: "topics", Value: "other"})
	p.AddElement(nil, &Element{Type: "checkbox", Name: "topics", Value: "outside"})

	assert.Len(t, p.Group(a), 2)
}
