// Package relay is the store-and-forward side of commcore and the client
// that talks to it.
//
// Hub keeps the key directory and per-user mailboxes in memory. Server puts
// a Hub and an auth.Server behind a chi router:
//
//	POST /auth/register/start   POST /auth/register/finish
//	POST /auth/login/start      POST /auth/login/finish
//	POST /keys                  GET  /keys/{user}
//	POST /msg/{user}            GET  /msg/{user}?limit=N
//	POST /msg/{user}/ack        GET  /healthz, /metrics
//
// Key and mailbox routes need the bearer token issued by login finish.
// Errors travel as {"code", "message"} and HTTPClient maps known codes back
// to the package sentinels, so callers can use errors.Is across the wire.
package relay
