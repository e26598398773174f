// Command example wires the order/ledger/health services defined in
// example/ into a net/http handler that pipes each request's body and
// response writer through a Machine. It exists to exercise the
// ServiceRouter registry end to end; it is not a supported transport
// adapter (see SPEC_FULL's External Interfaces note — framing, retries,
// and connection reuse are a runtime's job, not this package's).
package main

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	durable "github.com/durablehq/sdk-go"
	"github.com/durablehq/sdk-go/example"
	"github.com/durablehq/sdk-go/internal/state"
)

// duplex adapts an http.Request's body and its ResponseWriter into the
// single io.ReadWriter a Machine expects.
type duplex struct {
	io.Reader
	io.Writer
}

func main() {
	router := durable.NewRouter(example.Health, example.Ledger, example.Orders)

	mux := http.NewServeMux()
	mux.HandleFunc("/invoke/", func(w http.ResponseWriter, r *http.Request) {
		service, method, ok := parsePath(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}
		handler, ok := router.Resolve(service, method)
		if !ok {
			http.NotFound(w, r)
			return
		}

		conn := duplex{Reader: r.Body, Writer: w}
		m := state.NewMachine(handler, conn)
		if err := m.Start(r.Context(), service+"/"+method); err != nil && !errors.Is(err, io.EOF) {
			log.Printf("invocation %s/%s ended with error: %v", service, method, err)
		}
	})

	log.Fatal(http.ListenAndServe(":9080", mux))
}

// parsePath extracts "service" and "method" from "/invoke/service/method".
func parsePath(path string) (service, method string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/invoke/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
