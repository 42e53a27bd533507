package server

import (
	"net/http"
)

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(uiHTML))
}

const uiHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>carrierdesk</title>
  <style>
    body { font-family: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Arial; margin: 0; background:#fafafa; }
    header { padding: 12px 16px; border-bottom: 1px solid #eee; background:#fff; display:flex; gap:16px; align-items:center; }
    header h2 { margin:0; font-size: 18px; }
    main { padding: 16px; display:grid; gap: 16px; }
    .cards { display:grid; grid-template-columns: repeat(4, 1fr); gap: 12px; }
    .card { background:#fff; border:1px solid #eee; border-radius: 8px; padding: 12px; }
    .card .v { font-size: 24px; font-weight: 600; }
    .muted { color:#666; font-size: 12px; }
    .grid2 { display:grid; grid-template-columns: 1fr 1fr; gap: 12px; }
    .row { display:flex; gap: 8px; align-items:center; flex-wrap: wrap; }
    table { width:100%; border-collapse: collapse; font-size: 13px; }
    th, td { text-align:left; padding: 6px 8px; border-bottom: 1px solid #f0f0f0; }
    tr.click { cursor:pointer; }
    tr.click:hover { background:#f6f8ff; }
    .bar { height: 14px; background:#4f7cff; border-radius: 3px; }
    .bars td { border:none; padding: 3px 6px; }
    pre { background:#0b1020; color:#d6e2ff; padding:12px; border-radius:8px; overflow:auto; max-height: 280px; white-space: pre-wrap; }
    .pill { display:inline-block; padding: 1px 6px; border-radius: 10px; background:#eef; font-size: 12px; }
    #live { font-size: 12px; }
  </style>
</head>
<body>
<header>
  <h2>Carrier Sales</h2>
  <span class="muted">from</span><input id="dateFrom" type="date"/>
  <span class="muted">to</span><input id="dateTo" type="date"/>
  <button onclick="reloadAll()">Refresh</button>
  <span id="live" class="muted">live: connecting</span>
</header>
<main>
  <div class="cards">
    <div class="card"><div class="muted">Total calls</div><div class="v" id="sTotal">-</div><div class="muted" id="sRejected"></div></div>
    <div class="card"><div class="muted">Acceptance rate</div><div class="v" id="sRate">-</div><div class="muted" id="sAccepted"></div></div>
    <div class="card"><div class="muted">Revenue</div><div class="v" id="sRevenue">-</div><div class="muted" id="sAvgRate"></div></div>
    <div class="card"><div class="muted">Avg negotiation rounds</div><div class="v" id="sRounds">-</div><div class="muted" id="sPricing"></div></div>
  </div>

  <div class="grid2">
    <div class="card"><h4 style="margin-top:0">Calls per day</h4><table class="bars" id="chartDaily"></table></div>
    <div class="card">
      <h4 style="margin-top:0">Outcomes</h4><table class="bars" id="chartOutcome"></table>
      <h4>Sentiment</h4><table class="bars" id="chartSentiment"></table>
    </div>
  </div>

  <div class="card">
    <div class="row">
      <h4 style="margin:0">Calls</h4>
      <select id="fOutcome"><option value="">all outcomes</option></select>
      <select id="fSentiment"><option value="">all sentiments</option><option>positive</option><option>neutral</option><option>negative</option></select>
      <input id="fSearch" placeholder="call id / MC / load id"/>
      <button onclick="page=1; reloadCalls()">Search</button>
      <span class="muted" id="pageInfo"></span>
      <button onclick="if(page>1){page--; reloadCalls()}">Prev</button>
      <button onclick="if(hasMore){page++; reloadCalls()}">Next</button>
    </div>
    <table>
      <thead><tr><th>Started</th><th>Call</th><th>MC</th><th>Load</th><th>Outcome</th><th>Sentiment</th><th>Initial</th><th>Final</th><th>Rounds</th></tr></thead>
      <tbody id="calls"></tbody>
    </table>
    <div id="detail" class="muted"></div>
  </div>

  <div class="card">
    <h4 style="margin-top:0">Loads</h4>
    <table>
      <thead><tr><th>Load</th><th>Origin</th><th>Destination</th><th>Pickup</th><th>Equipment</th><th>Rate</th><th>Miles</th><th>$/mi</th><th>Commodity</th></tr></thead>
      <tbody id="loads"></tbody>
    </table>
  </div>
</main>
<script>
const OUTCOMES = ["booked_transfer","not_verified","no_load_found","negotiation_failed","not_interested","call_dropped"];
let page = 1, hasMore = false;

function esc(v) {
  if (v === null || v === undefined) return "-";
  return String(v).replace(/[&<>"']/g, c => ({"&":"&amp;","<":"&lt;",">":"&gt;","\"":"&quot;","'":"&#39;"}[c]));
}
function money(v) { return (v === null || v === undefined) ? "-" : "$" + Number(v).toLocaleString(undefined, {maximumFractionDigits: 2}); }
function fmtTime(v) { return v ? new Date(v).toLocaleString() : "-"; }

function rangeParams() {
  const p = new URLSearchParams();
  const f = document.getElementById("dateFrom").value;
  const t = document.getElementById("dateTo").value;
  if (f) p.set("dateFrom", f + "T00:00:00Z");
  if (t) p.set("dateTo", t + "T23:59:59Z");
  return p;
}

async function getJSON(url) {
  const res = await fetch(url);
  const body = await res.json();
  if (!res.ok) throw new Error(body.error_message || res.statusText);
  return body;
}

function bars(el, entries) {
  const max = Math.max(1, ...entries.map(e => e[1]));
  el.innerHTML = entries.map(([k, v]) =>
    "<tr><td style='width:150px'>" + esc(k) + "</td><td><div class='bar' style='width:" + (v / max * 100) + "%'></div></td><td style='width:40px'>" + v + "</td></tr>"
  ).join("");
}

async function reloadStats() {
  const s = await getJSON("/api/dashboard/stats?" + rangeParams());
  document.getElementById("sTotal").textContent = s.total_calls;
  document.getElementById("sRejected").textContent = s.rejected + " rejected";
  document.getElementById("sRate").textContent = s.acceptance_rate.toFixed(1) + "%";
  document.getElementById("sAccepted").textContent = s.accepted + " of " + s.total_calls + " calls";
  document.getElementById("sRevenue").textContent = money(s.total_revenue);
  document.getElementById("sAvgRate").textContent = "Average: " + money(s.avg_rate);
  document.getElementById("sRounds").textContent = s.avg_negotiation_rounds.toFixed(1);
  document.getElementById("sPricing").textContent =
    "max " + s.pricing.max_rounds + " rounds, buffer min($" + s.pricing.max_buffer_amount + ", " + (s.pricing.buffer_percentage * 100) + "%)";
  bars(document.getElementById("chartDaily"), s.daily.map(d => [d.day, d.calls]));
  bars(document.getElementById("chartOutcome"), Object.entries(s.by_outcome));
  bars(document.getElementById("chartSentiment"), Object.entries(s.by_sentiment));
}

async function reloadCalls() {
  const p = rangeParams();
  p.set("page", page);
  p.set("limit", 10);
  const o = document.getElementById("fOutcome").value;
  const se = document.getElementById("fSentiment").value;
  const q = document.getElementById("fSearch").value.trim();
  if (o) p.set("outcome", o);
  if (se) p.set("sentiment", se);
  if (q) p.set("search", q);
  const body = await getJSON("/api/calls/list?" + p);
  hasMore = body.pagination.hasMore;
  document.getElementById("pageInfo").textContent =
    "page " + body.pagination.page + " / " + Math.max(1, body.pagination.totalPages) + " (" + body.pagination.total + ")";
  document.getElementById("calls").innerHTML = body.calls.map(c =>
    "<tr class='click' onclick='showCall(\"" + esc(c.call_id) + "\")'>" +
    "<td>" + fmtTime(c.started_at) + "</td><td>" + esc(c.call_id) + "</td><td>" + esc(c.mc_number) + "</td><td>" + esc(c.selected_load_id) + "</td>" +
    "<td><span class='pill'>" + esc(c.outcome) + "</span></td><td>" + esc(c.sentiment) + "</td>" +
    "<td>" + money(c.initial_rate) + "</td><td>" + money(c.final_rate) + "</td><td>" + esc(c.negotiation_rounds) + "</td></tr>"
  ).join("");
}

async function showCall(id) {
  const body = await getJSON("/api/calls/" + encodeURIComponent(id));
  const c = body.call;
  document.getElementById("detail").innerHTML =
    "<h4>" + esc(c.call_id) + "</h4><pre>" + esc(c.transcript || "(no transcript)") + "</pre>";
}

async function reloadLoads() {
  const body = await getJSON("/api/loads/list");
  document.getElementById("loads").innerHTML = body.loads.map(l =>
    "<tr><td>" + esc(l.load_id) + "</td><td>" + esc(l.origin) + "</td><td>" + esc(l.destination) + "</td><td>" + fmtTime(l.pickup_datetime) + "</td>" +
    "<td>" + esc(l.equipment_type) + "</td><td>" + money(l.loadboard_rate) + "</td><td>" + esc(l.miles) + "</td>" +
    "<td>" + (l.miles > 0 ? (l.loadboard_rate / l.miles).toFixed(2) : "-") + "</td><td>" + esc(l.commodity_type) + "</td></tr>"
  ).join("");
}

function reloadAll() {
  Promise.all([reloadStats(), reloadCalls(), reloadLoads()]).catch(e => alert(e.message));
}

function connectLive() {
  const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/api/calls/stream");
  const live = document.getElementById("live");
  ws.onopen = () => { live.textContent = "live: connected"; };
  ws.onmessage = (ev) => {
    const msg = JSON.parse(ev.data);
    if (msg.type === "call") {
      live.textContent = "live: " + msg.call.call_id + " (" + msg.call.outcome + ")";
      reloadStats().catch(() => {});
      if (page === 1) reloadCalls().catch(() => {});
    }
  };
  ws.onclose = () => { live.textContent = "live: reconnecting"; setTimeout(connectLive, 3000); };
}

for (const o of OUTCOMES) {
  const opt = document.createElement("option");
  opt.value = o; opt.textContent = o;
  document.getElementById("fOutcome").appendChild(opt);
}
reloadAll();
connectLive();
</script>
</body>
</html>
`
