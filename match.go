package abd

import "strings"

// MatchesTarget implements the target-match query grammar from
// SPEC_FULL.md §6. It is pure with respect to t's current identity fields,
// so repeated calls with the same query always agree (SPEC_FULL.md §8).
func (t *Transport) MatchesTarget(query string) bool {
	t.mu.Lock()
	serial, devpath, product, model, device, isLocal := t.serial, t.devpath, t.product, t.model, t.device, t.isLocal
	t.mu.Unlock()

	switch {
	case strings.HasPrefix(query, "product:"):
		return product == strings.TrimPrefix(query, "product:")
	case strings.HasPrefix(query, "model:"):
		return model == strings.TrimPrefix(query, "model:")
	case strings.HasPrefix(query, "device:"):
		return device == strings.TrimPrefix(query, "device:")
	case strings.HasPrefix(query, "tcp:"):
		return isLocal && matchesHostPort(serial, strings.TrimPrefix(query, "tcp:"))
	case strings.HasPrefix(query, "udp:"):
		return isLocal && matchesHostPort(serial, strings.TrimPrefix(query, "udp:"))
	default:
		if query == serial || query == devpath {
			return true
		}
		if isLocal {
			host, _ := splitHostPort(serial)
			return query == host
		}
		return false
	}
}

// splitHostPort breaks a "host:port" serial into its parts. If there is no
// ':' the whole string is the host and port is empty.
func splitHostPort(serial string) (host, port string) {
	idx := strings.LastIndex(serial, ":")
	if idx < 0 {
		return serial, ""
	}
	return serial[:idx], serial[idx+1:]
}

// matchesHostPort checks a "H[:P]" query against a transport's "host:port"
// serial: H must equal the host, and P (if given) must equal the port.
func matchesHostPort(serial, query string) bool {
	wantHost, wantPort := splitHostPort(query)
	haveHost, havePort := splitHostPort(serial)
	if wantHost != haveHost {
		return false
	}
	if wantPort == "" {
		return true
	}
	return wantPort == havePort
}
