package request

import (
	"context"
	"net/http"
	"strings"

	"download-gate-service/domain"
)

type Context struct {
	request        *http.Request
	responseWriter http.ResponseWriter

	endpoint string

	clientKey domain.ClientKey
	admission *domain.Admission

	queryParams map[string]string
}

func NewContext(request *http.Request, response http.ResponseWriter, endpoint string) *Context {
	return &Context{
		request:        request,
		responseWriter: response,
		endpoint:       endpoint,
		clientKey:      domain.UnknownClientKey,
	}
}

func (c *Context) Request() *http.Request {
	return c.request
}

func (c *Context) ResponseWriter() http.ResponseWriter {
	return c.responseWriter
}

func (c *Context) SetResponseWriter(writer http.ResponseWriter) {
	c.responseWriter = writer
}

func (c *Context) Endpoint() string {
	return c.endpoint
}

func (c *Context) ClientKey() domain.ClientKey {
	return c.clientKey
}

func (c *Context) SetClientKey(key domain.ClientKey) {
	c.clientKey = key
}

func (c *Context) Admit(admission domain.Admission) {
	c.admission = &admission
}

// Admission returns the gate decision, false if the gate has not run for this request.
func (c *Context) Admission() (domain.Admission, bool) {
	if c.admission == nil {
		return domain.Admission{}, false
	}
	return *c.admission, true
}

func (c *Context) Context() context.Context {
	return c.request.Context()
}

func (c *Context) SetContext(ctx context.Context) {
	c.request = c.request.WithContext(ctx)
}

func (c *Context) Header(name string) string {
	return strings.TrimSpace(c.request.Header.Get(name))
}

// Query returns the first value of a query parameter, names are case-insensitive.
func (c *Context) Query(name string) string {
	if c.queryParams == nil {
		query := c.request.URL.Query()
		c.queryParams = map[string]string{}
		for key, values := range query {
			if len(values) == 0 {
				continue
			}
			c.queryParams[strings.ToLower(key)] = values[0]
		}
	}
	return strings.TrimSpace(c.queryParams[strings.ToLower(name)])
}
