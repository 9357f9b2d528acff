package stream

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the game service's push channel.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError websocket.StatusCode = 3001 // Provided auth token was invalid or expired.
	InvalidUserIDError    websocket.StatusCode = 3002 // User ID derived from token was malformed or invalid.
	InvalidSessionIDError websocket.StatusCode = 3003 // Target session does not exist.
)

// Subprotocol is requested when dialing the push channel.
const Subprotocol = "session"
