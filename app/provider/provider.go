package provider

import (
	"errors"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrTransport wraps every failure to obtain a usable answer from a remote endpoint:
// connection errors, timeouts, non-2xx replies, SOAP faults and undecodable bodies.
var ErrTransport = errors.New("remote transport failure")

type KeyValue struct {
	Key   string
	Value string
}

func newHTTPClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return resty.New().SetTimeout(timeout)
}
