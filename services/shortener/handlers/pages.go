package handlers

import "html/template"

type page struct {
	Title   string
	Message string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>{{.Title}}</title>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <style>
    body { font-family: system-ui, sans-serif; display: flex; align-items: center; justify-content: center; height: 100vh; margin: 0; background-color: #f9fafb; }
    .container { max-width: 500px; padding: 2rem; text-align: center; background-color: white; border-radius: 0.5rem; box-shadow: 0 4px 6px -1px rgba(0, 0, 0, 0.1); }
    h1 { color: #1f2937; margin-bottom: 1rem; }
    p { color: #4b5563; margin-bottom: 1.5rem; }
    a { display: inline-block; background-color: #2563eb; color: white; padding: 0.5rem 1rem; border-radius: 0.25rem; text-decoration: none; font-weight: 500; }
    a:hover { background-color: #1d4ed8; }
  </style>
</head>
<body>
  <div class="container">
    <h1>{{.Title}}</h1>
    <p>{{.Message}}</p>
    <a href="/">Go Home</a>
  </div>
</body>
</html>
`))

var notFoundPage = page{Title: "Link Not Found", Message: "The requested link does not exist or has expired."}
