package llm

import (
	"net/http"
	"time"

	"github.com/ppiankov/sourcecheck/internal/util"
)

// newHTTPClient builds the client used by the raw-HTTP providers. A zero
// defaultTimeout leaves the timeout to the caller's context.
func newHTTPClient(config Config, defaultTimeout time.Duration) *http.Client {
	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		},
	}
}
