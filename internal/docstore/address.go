package docstore

import (
	"net"
	"strings"
)

const defaultPort = "27017"

// SameDeployment reports whether two connection strings share a seed host.
// Credentials, the database path and options are ignored. Every loopback
// spelling counts as one host; other names are compared without resolving them.
func SameDeployment(a, b string) bool {
	hosts := seedHosts(a)
	for host := range seedHosts(b) {
		if _, ok := hosts[host]; ok {
			return true
		}
	}
	return false
}

func seedHosts(uri string) map[string]struct{} {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		scheme, rest = "", uri
	}
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}

	hosts := make(map[string]struct{})
	for _, seed := range strings.Split(rest, ",") {
		seed = strings.ToLower(strings.TrimSpace(seed))
		if seed == "" {
			continue
		}

		host, port, err := net.SplitHostPort(seed)
		if err != nil {
			host, port = strings.Trim(seed, "[]"), defaultPort
		}
		if host == "localhost" || net.ParseIP(host).IsLoopback() {
			host = "localhost"
		}

		key := net.JoinHostPort(host, port)
		// An SRV name is a DNS record, not a host, and never equals a plain seed.
		if strings.HasSuffix(strings.ToLower(scheme), "+srv") {
			key = "srv:" + host
		}
		hosts[key] = struct{}{}
	}
	return hosts
}
