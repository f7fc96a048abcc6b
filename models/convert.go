package models

import (
	"strings"

	"github.com/use-agent/pageready/render"
)

// NewResponseInfo flattens a render.Response for the API. Nil in, nil out.
func NewResponseInfo(r *render.Response) *ResponseInfo {
	if r == nil {
		return nil
	}
	info := &ResponseInfo{
		URL:        r.URL,
		StatusCode: r.StatusCode,
		StatusText: r.StatusText,
		MIMEType:   r.MIMEType,
	}
	if len(r.Header) > 0 {
		info.Headers = make(map[string]string, len(r.Header))
		for k, v := range r.Header {
			info.Headers[k] = strings.Join(v, ", ")
		}
	}
	return info
}
