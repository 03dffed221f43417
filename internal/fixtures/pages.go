package fixtures

// StatusPageMX611 is a trimmed Lexmark MX611dhe status page, the percentages in document order are
// toner 45%, (page count bar) 100%, maintenance kit 62%, imaging unit 7.5%.
const StatusPageMX611 = `<html>
<head>
<title>Printer Status 50%</title>
<style>.bar { width: 99%; }</style>
<script>var fill = "88%";</script>
</head>
<body>
<table>
<tr><td>Black Cartridge</td><td> 45% </td></tr>
<tr><td>Tray 1</td><td> 100% </td></tr>
<!-- hidden 33% -->
<tr><td>Maintenance Kit Life Remaining:</td><td> 62% </td></tr>
<tr><td>Imaging Unit Life Remaining:</td><td> 7.5% </td></tr>
</table>
</body>
</html>`

// StatusPageT654 is a Lexmark T654 status page, toner 12%, tray 80%, imaging unit 30%.
const StatusPageT654 = `<html><body>
<p>Black Toner ~12%</p>
<p>Tray 1 Level 80%</p>
<p>Photoconductor 30%</p>
</body></html>`

// StatusPageEmpty has no percentage values.
const StatusPageEmpty = `<html><body><p>Sleep mode</p></body></html>`
