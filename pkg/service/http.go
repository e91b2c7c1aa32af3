package service

import (
	"net/http"
	"strings"
)

/*
CallFromRequest builds the per-call context from the protocol headers and
the authenticated principal the auth middleware stashed on the request.
The call is canceled when the request's context ends.
*/
func CallFromRequest(r *http.Request) *ServerCallContext {
	call := NewServerCallContext()
	call.User = PrincipalFrom(r.Context())
	call.Version = r.Header.Get(VersionHeader)
	call.Extensions = ParseExtensions(r.Header.Get(ExtensionsHeader))

	go func() {
		<-r.Context().Done()
		call.Cancel()
	}()

	return call
}

// WriteCallHeaders echoes the negotiated protocol facts back to the
// caller. Must run before the response body is written.
func WriteCallHeaders(w http.ResponseWriter, call *ServerCallContext) {
	w.Header().Set(VersionHeader, ProtocolVersion)
	if activated := call.ActivatedExtensions(); len(activated) > 0 {
		w.Header().Set(ExtensionsHeader, strings.Join(activated, ", "))
	}
}
