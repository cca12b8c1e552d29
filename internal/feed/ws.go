package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gorilla/websocket"

	"github.com/mvmcode/elves-sub000/internal/game"
)

// Stream connects to a live event socket and forwards decoded events to
// out until ctx is cancelled or the server closes the connection. Each
// message may carry several newline-separated records. Stream does not
// close out.
func Stream(ctx context.Context, url string, d *Decoder, out chan<- game.Event) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read %s: %w", url, err)
		}
		for _, line := range bytes.Split(msg, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			ev, err := d.Decode(line)
			if err != nil {
				if !errors.Is(err, ErrInvalidRecord) {
					return err
				}
				log.Printf("feed: skipping record: %v", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
