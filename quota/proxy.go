package quota

import (
	"fmt"
	"net"
	"time"
)

// localProxyCandidatePorts are the ports common local proxies listen on.
var localProxyCandidatePorts = []int{7890, 20171, 1080, 8080}

const proxyDialTimeout = 250 * time.Millisecond

// guessLocalProxyEnv probes the candidate ports on loopback and returns
// proxy environment variables for the first one accepting a connection,
// or nil when none does.
func guessLocalProxyEnv() map[string]string {
	for _, port := range localProxyCandidatePorts {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), proxyDialTimeout)
		if err != nil {
			continue
		}
		conn.Close()

		httpProxy := fmt.Sprintf("http://127.0.0.1:%d/", port)
		socksProxy := fmt.Sprintf("socks://127.0.0.1:%d/", port)
		noProxy := "localhost,127.0.0.0/8,::1"
		return map[string]string{
			"HTTP_PROXY":  httpProxy,
			"HTTPS_PROXY": httpProxy,
			"ALL_PROXY":   socksProxy,
			"NO_PROXY":    noProxy,
			"http_proxy":  httpProxy,
			"https_proxy": httpProxy,
			"all_proxy":   socksProxy,
			"no_proxy":    noProxy,
		}
	}
	return nil
}
