package server

import "net/http"

// RouteHandler is a function type for HTTP handlers
type RouteHandler func(http.ResponseWriter, *http.Request)

// MethodRouter maps HTTP methods to handlers
type MethodRouter map[string]RouteHandler

// RouteByMethod dispatches on the request method, answering 405 for
// anything unmapped
func RouteByMethod(w http.ResponseWriter, r *http.Request, routes MethodRouter) {
	handler, ok := routes[r.Method]
	if !ok {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handler(w, r)
}

// RouteResourceCollection handles the list + create pattern on a collection path
func RouteResourceCollection(w http.ResponseWriter, r *http.Request, list, create RouteHandler) {
	RouteByMethod(w, r, MethodRouter{
		"GET":  list,
		"POST": create,
	})
}

// RouteResourceItem handles the get + update + delete pattern on an item path
func RouteResourceItem(w http.ResponseWriter, r *http.Request, get, update, remove RouteHandler) {
	RouteByMethod(w, r, MethodRouter{
		"GET":    get,
		"PUT":    update,
		"DELETE": remove,
	})
}
