package restyutil

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/go-resty/resty/v2"
)

const redactedValue = "<REDACTED>"

// redactor hides header values and url encoded form fields by name, names
// are matched case-insensitively.
type redactor map[string]struct{}

func newRedactor(names []string) redactor {
	r := redactor{}
	for _, name := range names {
		r[strings.ToLower(name)] = struct{}{}
	}
	return r
}

func (r redactor) hides(name string) bool {
	_, ok := r[strings.ToLower(name)]
	return ok
}

func (r redactor) headers(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out strings.Builder
	for _, k := range keys {
		for _, v := range headers[k] {
			if r.hides(k) {
				v = redactedValue
			}
			fmt.Fprintf(&out, "%s: %s\n", k, v)
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func (r redactor) body(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return "<NO BODY>"
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	if !strings.HasPrefix(req.Header.Get("content-type"), "application/x-www-form-urlencoded") {
		return string(raw)
	}

	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return string(raw)
	}
	for field := range form {
		if r.hides(field) {
			form.Set(field, redactedValue)
		}
	}
	return form.Encode()
}

// formatHttpMessage renders a request/response pair as plain text.
func (r redactor) formatHttpMessage(res *resty.Response) string {
	var out strings.Builder

	out.WriteString("---- REQUEST ----\n\n")
	fmt.Fprintf(&out, "%s %s\n\n", res.Request.Method, res.Request.URL)
	if raw := res.Request.RawRequest; raw != nil {
		out.WriteString(r.headers(raw.Header))
		out.WriteString("\n\n")
		out.WriteString(r.body(raw))
		out.WriteString("\n\n")
	}

	responseUrl := res.Request.URL
	if res.RawResponse != nil {
		redirected, err := res.RawResponse.Location()
		if err == nil {
			responseUrl = redirected.String()
		}
	}

	out.WriteString("---- RESPONSE ----\n\n")
	fmt.Fprintf(&out, "%d %s\n\n", res.StatusCode(), responseUrl)
	out.WriteString(r.headers(res.Header()))
	out.WriteString("\n\n")
	out.WriteString(res.String())
	return out.String()
}
