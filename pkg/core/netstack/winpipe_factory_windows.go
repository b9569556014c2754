//go:build windows

package netstack

import (
    "coapp/pkg/transport"
    "coapp/pkg/transport/winpipe"
)

func newWinPipeDialer() (transport.Dialer, error) { return winpipe.New(), nil }
