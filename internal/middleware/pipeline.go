// Package middleware holds the HTTP stages wrapped around the task router:
// request ids, access logging, security headers, panic recovery, CORS and
// per-route rate limiting.
package middleware

import "net/http"

type Middleware func(http.Handler) http.Handler

// Stage is a named middleware. Stages with a nil Wrap are skipped, which lets
// optional stages stay in the list when disabled.
type Stage struct {
	Name string
	Wrap Middleware
}

// Pipeline is an ordered list of stages; the first stage is the outermost.
type Pipeline struct {
	stages []Stage
}

func NewPipeline(stages ...Stage) *Pipeline {
	p := &Pipeline{}
	p.Use(stages...)
	return p
}

func (p *Pipeline) Use(stages ...Stage) {
	p.stages = append(p.stages, stages...)
}

// Names lists the active stages, outermost first.
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		if s.Wrap != nil {
			names = append(names, s.Name)
		}
	}
	return names
}

// Then wraps h with every active stage.
func (p *Pipeline) Then(h http.Handler) http.Handler {
	for i := len(p.stages) - 1; i >= 0; i-- {
		if p.stages[i].Wrap != nil {
			h = p.stages[i].Wrap(h)
		}
	}
	return h
}
