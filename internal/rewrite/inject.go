package rewrite

import "github.com/PuerkitoBio/goquery"

// ToolsScriptID marks the injected script so it is added at most once.
const ToolsScriptID = "rewrite-proxy-tools"

// toolsScript adds a floating button once the page has loaded. Clicking it
// highlights every .answer element and shows an alert.
const toolsScript = `<script id="` + ToolsScriptID + `">
window.addEventListener('load', () => {
  const button = document.createElement('button');
  button.innerText = 'Activate Extra Tools';
  button.style.position = 'fixed';
  button.style.top = '10px';
  button.style.right = '10px';
  button.style.zIndex = '9999';
  button.style.padding = '10px 15px';
  button.style.backgroundColor = '#4CAF50';
  button.style.color = 'white';
  button.style.border = 'none';
  button.style.borderRadius = '5px';
  button.style.cursor = 'pointer';
  button.onclick = () => {
    document.querySelectorAll('.answer').forEach(el => el.style.backgroundColor = 'yellow');
    alert('Tools activated!');
  };
  document.body.appendChild(button);
});
</script>`

// injectTools appends the tools script as the last child of <body>. It is a
// no-op when the document has no body or already carries the script.
func injectTools(doc *goquery.Document) {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return
	}
	if doc.Find("script#"+ToolsScriptID).Length() > 0 {
		return
	}
	body.AppendHtml(toolsScript)
}
