package middleware

import (
	"bytes"
	"net/http"
)

// recorder remembers the status and size of a response. When body is set it
// also keeps a copy of everything written.
type recorder struct {
	http.ResponseWriter
	status  int
	written int
	body    *bytes.Buffer
}

func newRecorder(w http.ResponseWriter, keepBody bool) *recorder {
	rec := &recorder{ResponseWriter: w}
	if keepBody {
		rec.body = &bytes.Buffer{}
	}
	return rec
}

func (r *recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	if r.body != nil {
		r.body.Write(b)
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Status is the code sent to the client, 200 when the handler never set one.
func (r *recorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
