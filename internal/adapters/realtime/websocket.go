package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait        = 5 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
	subscriberBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Stream upgrades the request and writes leaderboardID snapshots until the
// client goes away. initial, when non-nil, is sent first so a new client
// does not wait for the next ingestion. Sequenced snapshots not newer than
// the last one written are skipped.
func Stream(w http.ResponseWriter, r *http.Request, hub *Hub, leaderboardID string, initial *Snapshot) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	id, ch := hub.Subscribe(leaderboardID, subscriberBuffer)
	defer hub.Unsubscribe(leaderboardID, id)

	closed := make(chan struct{})
	go readPump(conn, closed)

	var last uint64
	if initial != nil {
		if err := writeSnapshot(conn, *initial); err != nil {
			return err
		}
		last = initial.Seq
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return nil
		case <-r.Context().Done():
			return nil
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			if snap.Seq != 0 && snap.Seq <= last {
				continue
			}
			if err := writeSnapshot(conn, snap); err != nil {
				return err
			}
			if snap.Seq != 0 {
				last = snap.Seq
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		}
	}
}

// readPump consumes control frames; clients are not expected to send data.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap Snapshot) error {
	b, err := Marshal(snap)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
