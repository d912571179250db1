// Package templates holds the HTML fragments served to HTMX clients.
package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// ErrorAlert renders a dismissible error banner with the support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w,
			`<div class="alert alert-error" role="alert" data-code="`+templ.EscapeString(code)+`">`+
				`<p class="alert-message">`+templ.EscapeString(message)+`</p>`+
				actionLine(action)+
				`<p class="alert-code">Code: `+templ.EscapeString(code)+`</p>`+
				`<button type="button" class="alert-close" onclick="this.parentElement.remove()">&times;</button>`+
				`</div>`)
		return err
	})
}

func actionLine(action string) string {
	if action == "" {
		return ""
	}
	return `<p class="alert-action">` + templ.EscapeString(action) + `</p>`
}
