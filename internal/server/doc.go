// Package server provides HTTP routing, middleware, and a fixture-backed replay of the analysis backend.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] runs in the order it is added; the first added is outermost.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Replay Backend
//
// [ReplayHandler] serves POST /analyze, POST /re-analyze and GET /audio/{file} from a directory of
// recorded TrackRecord JSON files and audio assets. It emits the same progress, complete and error
// NDJSON lines as the real service, flushing after each one, so the client stack can run offline.
//
// Error responses use the backend's {"error": "..."} body and status codes.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
