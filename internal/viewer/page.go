// ABOUTME: Server-rendered HTML template for the second-screen page
// ABOUTME: Connects back over WebSocket for live slide and question updates

package viewer

import "html/template"

var pageTemplate = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Conference.Title}}</title>
<style>
  body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 48rem; padding: 0 1rem; }
  h1 { margin-bottom: 0.25rem; }
  .slide { border: 1px solid #ccc; border-radius: 8px; padding: 1rem; margin: 1rem 0; }
  .question { border-left: 3px solid #4a90d9; padding-left: 0.75rem; margin: 0.75rem 0; }
  .poll { background: #f7f7f7; border-radius: 8px; padding: 1rem; margin: 1rem 0; }
  .muted { color: #777; font-size: 0.85rem; }
</style>
</head>
<body>
<h1>{{.Conference.Title}}</h1>
<div class="muted">code: {{.Conference.Code}}</div>
<div id="description">{{.Description}}</div>

<div class="slide" id="slide">
{{if .Conference.SlideURL}}
  <a href="{{.Conference.SlideURL}}">{{if .Conference.SlideTitle}}{{.Conference.SlideTitle}}{{else}}Current slide{{end}}</a>
{{else}}
  <span class="muted">No slide yet</span>
{{end}}
</div>

<h2>Approved questions</h2>
<div id="questions">
{{range .Questions}}
  <div class="question">{{.Text}}{{if .Answered}}<div class="muted">answered: {{.Answer}}</div>{{end}}</div>
{{else}}
  <span class="muted">No approved questions yet</span>
{{end}}
</div>

<h2>Active polls</h2>
{{range .Polls}}
<div class="poll">
  <strong>{{.Question}}</strong>
  <ul>
  {{range .Options}}<li>{{.Text}}: {{len .Voters}}</li>{{end}}
  </ul>
</div>
{{else}}
<span class="muted">No active polls</span>
{{end}}

<script>
(function () {
  const code = {{.Conference.Code}};
  const token = new URLSearchParams(location.search).get("token");
  if (!token) return;
  const proto = location.protocol === "https:" ? "wss" : "ws";
  const ws = new WebSocket(proto + "://" + location.host + "/c/" + code + "/live?token=" + token);
  ws.onmessage = function (msg) {
    const ev = JSON.parse(msg.data);
    if (ev.kind === "slide-updated") {
      const slide = document.getElementById("slide");
      slide.innerHTML = ev.url
        ? '<a href="' + ev.url + '">' + (ev.title || "Current slide") + "</a>"
        : '<span class="muted">No slide yet</span>';
    } else if (ev.kind === "question-approved") {
      const div = document.createElement("div");
      div.className = "question";
      div.textContent = ev.text;
      document.getElementById("questions").appendChild(div);
    }
  };
})();
</script>
</body>
</html>
`))
