package monitor

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Weed Scan Monitor</title>
<style>
  body { font-family: sans-serif; background: #111; color: #ddd; margin: 0; padding: 20px; }
  h1 { font-size: 1.2em; color: #6c6; }
  .wrap { display: flex; gap: 20px; flex-wrap: wrap; }
  img { border: 1px solid #333; max-width: 800px; width: 100%; }
  table { border-collapse: collapse; }
  td { padding: 2px 10px; border-bottom: 1px solid #222; }
  td:first-child { color: #888; }
</style>
</head>
<body>
<h1>Weed Scan Monitor</h1>
<div class="wrap">
  <div><img src="/stream" alt="live annotated stream"></div>
  <table id="status"></table>
</div>
<script>
const rows = [
  ["source", "Source"], ["state", "State"], ["frames_read", "Frames read"],
  ["frames_processed", "Frames processed"], ["detections", "Detections"],
  ["frames_with_weeds", "Frames with weeds"], ["coverage", "Coverage"],
  ["current_fps", "FPS"], ["reconnects", "Reconnects"], ["decode_errors", "Decode errors"]
];
const table = document.getElementById("status");
function render(s) {
  table.innerHTML = rows.map(([key, label]) => {
    let v = s[key];
    if (key === "coverage") v = (v * 100).toFixed(1) + "%";
    if (key === "current_fps") v = Number(v).toFixed(1);
    return "<tr><td>" + label + "</td><td>" + v + "</td></tr>";
  }).join("");
}
const es = new EventSource("/api/status/stream");
es.onmessage = (e) => render(JSON.parse(e.data));
</script>
</body>
</html>
`
