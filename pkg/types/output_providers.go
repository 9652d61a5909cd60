package types

import "encoding/json"

type OutputProvider interface {
	Write(result Result) error
}

type Result struct {
	Module   string `json:"module"`
	Filename string `json:"-"`
	Data     any    `json:"data"`
}

type ResultOption func(*Result)

func NewResult(module string, data any, opts ...ResultOption) Result {
	r := &Result{
		Module: module,
		Data:   data,
	}

	for _, opt := range opts {
		opt(r)
	}
	return *r
}

func WithFilename(filename string) ResultOption {
	return func(r *Result) {
		r.Filename = filename
	}
}

func (r *Result) String() string {
	d, _ := json.MarshalIndent(r.Data, "", "  ")
	return string(d)
}
