package wsgate

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader is shared process-wide; gorilla/websocket's Upgrader is safe for
// concurrent use once configured. Origin checking is left permissive — this
// control plane expects to sit behind an authenticating reverse proxy or
// its own token check, not browser same-origin policy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades r to a websocket connection and hands the resulting Conn
// to onConnect, which is responsible for registering message/close
// callbacks and calling Run. The signature mirrors a plain net/http
// handler so it can be mounted directly with http.HandleFunc.
func Handler(onConnect func(*Conn, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		onConnect(Upgrade(ws), r)
	}
}
