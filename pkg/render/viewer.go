package render

import (
	"fmt"
	"os"
	"text/template"
)

// viewerTemplate is a self-contained page cycling through the produced
// 3D views client-side, preferring the animated rotation when present.
var viewerTemplate = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html>
<head>
<style>
  body { background-color: #000; margin: 0; display: flex; justify-content: center; align-items: center; height: 100vh; }
  .hologram { max-width: 100%; max-height: 100vh; display: block; margin: auto; }
</style>
<script>
  let currentView = 0;
  const views = [{{range $i, $v := .Views}}{{if $i}}, {{end}}"{{$v}}"{{end}}];

  function changeView(idx) {
    currentView = idx;
    document.getElementById('hologram').src = views[idx];
  }

  function rotateView() {
    currentView = (currentView + 1) % views.length;
    document.getElementById('hologram').src = views[currentView];
    setTimeout(rotateView, 2000);
  }

  window.onload = function() {
    const gifIndex = views.findIndex(v => v.endsWith('.gif'));
    if (gifIndex >= 0) {
      changeView(gifIndex);
    }
    setTimeout(rotateView, 3000);
  };
</script>
</head>
<body>
  <img id="hologram" src="{{.Initial}}" class="hologram" />
</body>
</html>
`))

// WriteViewerHTML writes the minimal rotation-loop viewer page
// referencing the given view URLs. The last URL is shown first, which
// matches the order the snapshot batch appends its primary image.
func WriteViewerHTML(path string, views []string) error {
	if len(views) == 0 {
		return fmt.Errorf("no views to reference")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	data := struct {
		Views   []string
		Initial string
	}{Views: views, Initial: views[len(views)-1]}

	if err := viewerTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("writing viewer page: %w", err)
	}
	return nil
}
