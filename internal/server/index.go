package server

const indexHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Chat history</title>
<style>
body { font-family: system-ui, sans-serif; margin: 0; display: flex; height: 100vh; }
nav { width: 22rem; overflow-y: auto; border-right: 1px solid #ddd; }
main { flex: 1; overflow-y: auto; padding: 1rem 2rem; }
h3 { font-size: .8rem; color: #888; margin: 1rem .75rem .25rem; }
a.conv { display: block; padding: .35rem .75rem; color: inherit; text-decoration: none; }
a.conv:hover { background: #f3f3f3; }
.msg { margin: 1rem 0; white-space: pre-wrap; }
.role { font-weight: 600; }
.internal { color: #888; font-style: italic; }
</style>
</head>
<body>
<nav id="list"></nav>
<main id="view"><p>Select a conversation.</p></main>
<script>
const list = document.getElementById("list");
const view = document.getElementById("view");

function el(tag, cls, text) {
  const e = document.createElement(tag);
  if (cls) e.className = cls;
  if (text !== undefined) e.textContent = text;
  return e;
}

async function show(provider, id) {
  const res = await fetch("/api/conversations/" + encodeURIComponent(provider) + "/" + encodeURIComponent(id) + "/messages");
  view.replaceChildren();
  if (!res.ok) { view.append(el("p", "", "Conversation not found.")); return; }
  const data = await res.json();
  for (const m of data.messages) {
    const div = el("div", "msg " + m.role);
    if (m.role !== "internal") div.append(el("div", "role", m.role + " · " + m.created));
    div.append(el("div", "", m.text));
    view.append(div);
  }
}

async function load() {
  const items = await (await fetch("/api/conversations")).json();
  let group = null;
  for (const c of items) {
    if (c.group !== group) { group = c.group; list.append(el("h3", "", group)); }
    const a = el("a", "conv", (c.is_favorite ? "★ " : "") + c.title);
    a.href = "/?provider=" + encodeURIComponent(c.provider) + "&conv_id=" + encodeURIComponent(c.id);
    a.onclick = (ev) => { ev.preventDefault(); history.pushState(null, "", a.href); show(c.provider, c.id); };
    list.append(a);
  }
  const q = new URLSearchParams(location.search);
  if (q.get("provider") && q.get("conv_id")) show(q.get("provider"), q.get("conv_id"));
}

load();
</script>
</body>
</html>
`
