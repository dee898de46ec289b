package websocket

import "fmt"

// CloseError is returned by Recv once the close handshake has completed,
// carrying the code and reason the peer (or we, if we initiated it) sent.
// Callers that care why the connection closed can errors.As into
// *CloseError; Recv's other errors are wserrors sentinels for protocol
// violations or the transport's own I/O errors.
type CloseError struct {
	Code   CloseCode
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket: closed with code %d", e.Code)
	}
	return fmt.Sprintf("websocket: closed with code %d: %s", e.Code, e.Reason)
}
