package client

import (
	"net/url"
)

const baseRoute = "/api/client/v2.0"

// routes builds the per-application backend paths.
type routes struct {
	app string
}

func newRoutes(appID string) routes {
	return routes{app: baseRoute + "/app/" + url.PathEscape(appID)}
}

func (r routes) login(providerName string, link bool) string {
	p := r.app + "/auth/providers/" + url.PathEscape(providerName) + "/login"
	if link {
		p += "?link=true"
	}
	return p
}

func (r routes) register() string { return r.app + "/auth/providers/local-userpass/register" }
func (r routes) profile() string  { return r.app + "/auth/profile" }
func (r routes) session() string  { return r.app + "/auth/session" }
func (r routes) functionCall() string {
	return r.app + "/functions/call"
}
