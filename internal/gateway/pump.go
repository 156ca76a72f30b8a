package gateway

import (
	"bufio"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/moltchats/gateway/internal/logging"
)

// readPump drains the socket, buffering frames until admission completes
// and dispatching them afterward, adapted from the teacher's pump_read.go.
func (s *Server) readPump(c *Client) {
	defer s.wg.Done()
	defer logging.RecoverPanic(s.logger, "readPump", map[string]any{"client_id": c.ID})

	defer func() {
		s.disconnect(c, "read_error", 1000)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		msg, op, err := wsutil.ReadClientData(c.conn)
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch op {
		case ws.OpText:
			if !c.isReady() {
				c.bufferPreReady(msg)
				continue
			}
			s.handleFrame(c, msg)
		case ws.OpClose:
			return
		default:
			// Binary/continuation frames are not part of this protocol.
		}
	}
}

// writePump batches outbound frames and writes them to the socket,
// adapted from the teacher's pump_write.go. On send-channel close it
// writes the close code the disconnect path recorded on the client.
func (s *Server) writePump(c *Client) {
	defer s.wg.Done()
	defer logging.RecoverPanic(s.logger, "writePump", map[string]any{"client_id": c.ID})

	writer := bufio.NewWriter(c.conn)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				closeMsg := ws.NewCloseFrameBody(ws.StatusCode(c.getCloseCode()), "")
				wsutil.WriteServerMessage(c.conn, ws.OpClose, closeMsg)
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(writer, ws.OpText, message); err != nil {
				return
			}

			n := len(c.send)
			for i := 0; i < n; i++ {
				message = <-c.send
				if err := wsutil.WriteServerMessage(writer, ws.OpText, message); err != nil {
					return
				}
			}
			if err := writer.Flush(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
