package dashboard

// scoreboardHTML is the single-page client. Everything is inline so the
// dashboard works on a clubhouse laptop with no network beyond the
// laptop itself.
const scoreboardHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Caddie Scoreboard</title>
<style>
  body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 0; background: #14321e; color: #f2f2ec; }
  header { display: flex; align-items: baseline; gap: 1rem; padding: 1rem 1.5rem; background: #0d2414; }
  h1 { margin: 0; font-size: 1.3rem; letter-spacing: .04em; }
  #conn { font-size: .8rem; color: #9fb8a6; }
  #conn.up::before { content: "● "; color: #7ad98b; }
  #conn.down::before { content: "● "; color: #e06c5a; }
  main { display: grid; grid-template-columns: 2fr 1fr; gap: 1rem; padding: 1rem 1.5rem; }
  section { background: #1b3f27; border-radius: 6px; padding: .75rem 1rem; }
  h2 { margin: 0 0 .5rem; font-size: .8rem; text-transform: uppercase; color: #9fb8a6; }
  table { width: 100%; border-collapse: collapse; }
  td, th { padding: .35rem .5rem; text-align: left; font-size: .9rem; }
  th { color: #9fb8a6; font-weight: normal; font-size: .75rem; }
  tr + tr td { border-top: 1px solid #28543a; }
  .score { font-weight: 600; font-variant-numeric: tabular-nums; }
  .final { color: #ffd97a; }
  #queue { display: flex; gap: 1.5rem; font-size: 1.5rem; font-variant-numeric: tabular-nums; }
  #queue span small { display: block; font-size: .65rem; color: #9fb8a6; text-transform: uppercase; }
  #queue .failed { color: #e06c5a; }
  #feed { list-style: none; margin: 0; padding: 0; font-size: .8rem; max-height: 22rem; overflow-y: auto; }
  #feed li { padding: .25rem 0; border-bottom: 1px solid #28543a; color: #cfdcd2; }
</style>
</head>
<body>
<header>
  <h1>Caddie Scoreboard</h1>
  <span id="conn" class="down">connecting</span>
</header>
<main>
  <section>
    <h2>Matches</h2>
    <table>
      <thead><tr><th>Match</th><th>Status</th><th>Score</th><th>Thru</th></tr></thead>
      <tbody id="matches"></tbody>
    </table>
  </section>
  <div>
    <section>
      <h2>Sync queue</h2>
      <div id="queue">
        <span><b id="q-pending">0</b><small>pending</small></span>
        <span class="failed"><b id="q-failed">0</b><small>failed</small></span>
      </div>
    </section>
    <section style="margin-top:1rem">
      <h2>Activity</h2>
      <ul id="feed"></ul>
    </section>
  </div>
</main>
<script>
(function () {
  var matches = {};
  var conn = document.getElementById("conn");

  function short(id) { return id ? id.slice(0, 8) : "?"; }

  function renderMatches() {
    var tbody = document.getElementById("matches");
    tbody.innerHTML = "";
    Object.keys(matches).sort().forEach(function (id) {
      var m = matches[id];
      var tr = document.createElement("tr");
      var cls = m.status === "final" ? "score final" : "score";
      tr.innerHTML = "<td>" + short(m.match_id) + "</td><td>" + m.status +
        "</td><td class=\"" + cls + "\">" + (m.result || m.score) +
        "</td><td>" + m.thru + "</td>";
      tbody.appendChild(tr);
    });
  }

  function feed(text) {
    var li = document.createElement("li");
    li.textContent = new Date().toLocaleTimeString() + "  " + text;
    var list = document.getElementById("feed");
    list.insertBefore(li, list.firstChild);
    while (list.children.length > 50) list.removeChild(list.lastChild);
  }

  function handle(msg) {
    var d = msg.data || {};
    switch (msg.type) {
    case "queue_status":
      document.getElementById("q-pending").textContent = d.pending;
      document.getElementById("q-failed").textContent = d.failed;
      break;
    case "match_score":
      matches[d.match_id] = d;
      renderMatches();
      break;
    case "scoring_event":
      if (d.hole_number) {
        feed("hole " + d.hole_number + " to " + d.winner + " in match " + short(d.match_id));
      } else {
        feed(d.type + " in match " + short(d.match_id));
      }
      break;
    case "sync_result":
      feed("sync (" + d.trigger + "): " + d.synced + " pushed" +
        (d.failed ? ", " + d.failed + " failed" : ""));
      break;
    }
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function () { conn.textContent = "live"; conn.className = "up"; };
    ws.onclose = function () {
      conn.textContent = "disconnected";
      conn.className = "down";
      setTimeout(connect, 2000);
    };
    ws.onmessage = function (ev) {
      try { handle(JSON.parse(ev.data)); } catch (e) { /* ignore */ }
    };
  }
  connect();
})();
</script>
</body>
</html>
`
