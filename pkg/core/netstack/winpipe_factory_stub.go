//go:build !windows

package netstack

import (
    "fmt"

    "coapp/pkg/transport"
)

func newWinPipeDialer() (transport.Dialer, error) {
    return nil, fmt.Errorf("winpipe transport is not supported on this platform")
}
