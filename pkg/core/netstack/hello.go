package netstack

import (
    "coapp/pkg/protocol/message"
    "coapp/pkg/transport"
)

// CmdStartSession opens a session; it is the first message on every link.
const CmdStartSession = "start-session"

// StartSession builds the handshake naming this client and session.
func StartSession(client, session string) *message.Message {
    return message.New(CmdStartSession).Set(message.FieldClient, client).Set(message.FieldSession, session)
}

// SendHello writes the handshake on a fresh link.
func SendHello(c transport.Conn, client, session string) error {
    return c.SendBytes(message.Encode(StartSession(client, session)))
}
