package httpserver

import "net/http"

// Middleware wraps a handler. It may answer the request itself or pass it on.
type Middleware func(http.Handler) http.Handler

// Pipeline is an ordered list of middleware. The first middleware added sees
// the request first.
type Pipeline struct {
	middleware []Middleware
}

// NewPipeline returns a pipeline starting with mw.
func NewPipeline(mw ...Middleware) *Pipeline {
	return &Pipeline{middleware: append([]Middleware(nil), mw...)}
}

// Use appends middleware to the end of the pipeline.
func (p *Pipeline) Use(mw ...Middleware) *Pipeline {
	p.middleware = append(p.middleware, mw...)
	return p
}

// Len returns the number of middleware in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.middleware)
}

// Then wraps h with every middleware in the pipeline.
func (p *Pipeline) Then(h http.Handler) http.Handler {
	for i := len(p.middleware) - 1; i >= 0; i-- {
		h = p.middleware[i](h)
	}
	return h
}
