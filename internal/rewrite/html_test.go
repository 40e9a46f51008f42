package rewrite

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func TestHTML_RewritesAttributes(t *testing.T) {
	rw := New(testContext, ModePrefix, CookieSameSiteLax)
	in := `<!DOCTYPE html>
<html><head>
<link rel="stylesheet" href="/css/site.css">
<script src="https://www.quia.com/js/app.js"></script>
</head><body>
<a href="/foo">foo</a>
<a href="https://other-domain.example/x">other</a>
<a href="#top">top</a>
<img src="//www.quia.com/img/logo.png">
<iframe src="/embed"></iframe>
<form action="/bar" method="post"></form>
<form method="get"></form>
</body></html>`

	out, err := rw.HTML([]byte(in), "text/html; charset=utf-8")
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}

	for _, want := range []string{
		`<a href="/proxy/foo">`,
		`<form action="/proxy/bar" method="post">`,
		`<link rel="stylesheet" href="/proxy/css/site.css"/>`,
		`<script src="/proxy/js/app.js">`,
		`<img src="/proxy/img/logo.png"/>`,
		`<iframe src="/proxy/embed">`,
		`<a href="https://other-domain.example/x">`,
		`<a href="#top">`,
		`<form method="get">`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}

	if n := strings.Count(out, `id="`+ToolsScriptID+`"`); n != 1 {
		t.Errorf("injected script count = %d, want 1", n)
	}
}

func TestHTML_ScriptIsLastChildOfBody(t *testing.T) {
	rw := New(testContext, ModePrefix, CookieSameSiteLax)
	out, err := rw.HTML([]byte(`<html><body><p>hi</p><div class="answer">42</div></body></html>`), "text/html")
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	last := doc.Find("body").Children().Last()
	if id, _ := last.Attr("id"); id != ToolsScriptID || goquery.NodeName(last) != "script" {
		t.Errorf("last body child = <%s id=%q>, want injected script", goquery.NodeName(last), id)
	}
	if !strings.Contains(last.Text(), "Activate Extra Tools") {
		t.Error("injected script does not create the tools button")
	}
}

func TestHTML_InjectsOnce(t *testing.T) {
	rw := New(testContext, ModePrefix, CookieSameSiteLax)
	first, err := rw.HTML([]byte(`<html><body><p>x</p></body></html>`), "text/html")
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}
	second, err := rw.HTML([]byte(first), "text/html")
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}
	if n := strings.Count(second, `id="`+ToolsScriptID+`"`); n != 1 {
		t.Errorf("injected script count after second pass = %d, want 1", n)
	}
}

func TestHTML_StripMode(t *testing.T) {
	rw := New(testContext, ModeStrip, CookieDropSecure)
	out, err := rw.HTML([]byte(`<a href="https://www.quia.com/a">a</a><a href="/b">b</a>`), "text/html")
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}
	if !strings.Contains(out, `<a href="/a">`) || !strings.Contains(out, `<a href="/b">`) {
		t.Errorf("unexpected strip-mode output:\n%s", out)
	}
}

func TestHTML_TranscodesLatin1(t *testing.T) {
	rw := New(testContext, ModePrefix, CookieSameSiteLax)
	// "café" in ISO-8859-1.
	in := []byte("<html><body><p>caf\xe9</p></body></html>")
	out, err := rw.HTML(in, "text/html; charset=iso-8859-1")
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}
	if !strings.Contains(out, "café") {
		t.Errorf("output not transcoded to UTF-8:\n%s", out)
	}
}

func TestInjectTools_NoBody(t *testing.T) {
	doc := goquery.NewDocumentFromNode(&html.Node{Type: html.DocumentNode})
	injectTools(doc)
	out, err := doc.Html()
	if err != nil {
		t.Fatalf("Html() error = %v", err)
	}
	if strings.Contains(out, ToolsScriptID) {
		t.Errorf("script injected into a document without body: %q", out)
	}
}

func TestCompileAttrRules(t *testing.T) {
	rules := compileAttrRules(urlAttributes)
	if len(rules) != len(urlAttributes) {
		t.Fatalf("rules = %d, want %d", len(rules), len(urlAttributes))
	}
	got := make(map[string]int)
	for _, r := range rules {
		got[r.attr]++
	}
	if got["href"] != 2 || got["src"] != 3 || got["action"] != 1 {
		t.Errorf("attribute distribution = %v", got)
	}
}
