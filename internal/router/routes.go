package router

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

type Screen string

const (
	ScreenLoading    Screen = "loading"
	ScreenLogin      Screen = "login"
	ScreenRegister   Screen = "register"
	ScreenTasks      Screen = "tasks"
	ScreenSubmit     Screen = "submit"
	ScreenTaskDetail Screen = "task"
	ScreenDatasets   Screen = "datasets"
	ScreenModels     Screen = "models"
	ScreenChat       Screen = "chat"
)

const (
	PathLogin    = "/login"
	PathRegister = "/register"
	PathTasks    = "/"
	PathSubmit   = "/submit-task"
	PathDatasets = "/datasets"
	PathModels   = "/models"
	PathChat     = "/chat"
)

func TaskPath(taskId string) string {
	return "/tasks/" + url.PathEscape(taskId)
}

type route struct {
	screen Screen
	public bool
}

var routeTable = map[string]route{
	PathLogin:         {screen: ScreenLogin, public: true},
	PathRegister:      {screen: ScreenRegister, public: true},
	PathTasks:         {screen: ScreenTasks},
	PathSubmit:        {screen: ScreenSubmit},
	PathDatasets:      {screen: ScreenDatasets},
	PathModels:        {screen: ScreenModels},
	PathChat:          {screen: ScreenChat},
	"/tasks/{taskId}": {screen: ScreenTaskDetail},
}

// Location is a matched route.
type Location struct {
	Path   string
	Screen Screen
	Params map[string]string
}

func (l Location) Param(name string) string {
	return l.Params[name]
}

// routeMux matches paths with the same pattern syntax the server side uses.
// Handlers are never invoked.
type routeMux struct {
	mux *chi.Mux
}

func newRouteMux() *routeMux {
	mux := chi.NewRouter()
	noop := func(http.ResponseWriter, *http.Request) {}
	for pattern := range routeTable {
		mux.Get(pattern, noop)
	}
	return &routeMux{mux: mux}
}

func (m *routeMux) match(path string) (Location, route, bool) {
	rctx := chi.NewRouteContext()
	if !m.mux.Match(rctx, http.MethodGet, path) {
		return Location{}, route{}, false
	}

	r, ok := routeTable[rctx.RoutePattern()]
	if !ok {
		return Location{}, route{}, false
	}

	loc := Location{Path: path, Screen: r.screen}
	for i, key := range rctx.URLParams.Keys {
		if loc.Params == nil {
			loc.Params = make(map[string]string)
		}
		value, err := url.PathUnescape(rctx.URLParams.Values[i])
		if err != nil {
			value = rctx.URLParams.Values[i]
		}
		loc.Params[key] = value
	}
	return loc, r, true
}
