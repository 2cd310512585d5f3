// Package api provides the HTTP gateway and WebSocket stream for camgate.
//
// All routes live under /api. Login and PIN verification use the account
// configured on the server, never credentials from the request body. A
// successful login stores only the principal in a signed, encrypted session
// cookie; the cached upstream session is looked up from it on every request.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
