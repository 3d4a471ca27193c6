package httpapi

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"path"
	"strings"
)

const baseHrefPlaceholder = "<!-- BASE_HREF -->"

// mount places the handler under an optional path prefix, as when ascart sits
// behind a reverse proxy.
type mount struct {
	// prefix is "" or a cleaned path without a trailing slash.
	prefix string
	// href is what the control page uses as <base href>, "" when unset.
	href string
}

func newMount(baseURL, basePath string) mount {
	m := mount{}
	if trimmed := strings.Trim(strings.TrimSpace(basePath), "/"); trimmed != "" {
		m.prefix = path.Clean("/" + trimmed)
	}
	origin := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if origin != "" || m.prefix != "" {
		m.href = origin + m.prefix + "/"
	}
	return m
}

// wrap strips the prefix and redirects the bare prefix to its slash form.
func (m mount) wrap(handler http.Handler) http.Handler {
	if m.prefix == "" {
		return handler
	}
	root := http.NewServeMux()
	root.Handle(m.prefix+"/", http.StripPrefix(m.prefix, handler))
	root.HandleFunc(m.prefix, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, m.prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

// page fills the base href placeholder of an HTML page.
func (m mount) page(data []byte) []byte {
	tag := ""
	if m.href != "" {
		tag = fmt.Sprintf(`<base href="%s" />`, html.EscapeString(m.href))
	}
	return bytes.ReplaceAll(data, []byte(baseHrefPlaceholder), []byte(tag))
}
