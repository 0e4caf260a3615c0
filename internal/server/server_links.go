package server

import (
	"net/http"

	"github.com/izzyreal/fakeipa/internal/protocol"
)

const (
	agentDocsURL   = "https://docs.openstack.org/ironic-python-agent"
	agentMediaType = "application/vnd.openstack.ironic-python-agent.v1+json"
)

// requestRoot is the scheme and host the request was made to.
func requestRoot(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func makeLink(root, rel, resource string) protocol.Link {
	switch rel {
	case "describedby":
		return protocol.Link{Href: agentDocsURL + "/", Rel: rel, Type: "text/html"}
	case "bookmark":
		return protocol.Link{Href: root + "/" + resource, Rel: rel}
	}
	return protocol.Link{Href: root + "/v1/" + resource, Rel: rel}
}

func versionDoc(root string) protocol.APIVersionDoc {
	return protocol.APIVersionDoc{
		ID: "v1",
		Links: []protocol.Link{
			{Href: root + "/v1", Rel: "self"},
			makeLink(root, "describedby", ""),
		},
	}
}
