package inference

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

// WSDetector speaks to an inference sidecar over a persistent websocket:
// one binary frame out (the image), one JSON frame back (the detections).
// The protocol has no frame correlation, so calls are serialized on a mutex;
// tasks against other models still run in parallel.
type WSDetector struct {
	name         string
	url          string
	log          *logrus.Logger
	mu           sync.Mutex
	conn         *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewWSDetector(name, url string, log *logrus.Logger) *WSDetector {
	d := &WSDetector{
		name:         name,
		url:          url,
		log:          log,
		readTimeout:  60 * time.Second,
		writeTimeout: 5 * time.Second,
	}

	go func() {
		if err := d.reconnect(); err != nil {
			log.Warnf("Initial connection to %s failed: %v. Will retry on demand.", name, err)
		} else {
			log.Infof("Successfully connected to %s inference service", name)
		}
	}()

	return d
}

func (d *WSDetector) Name() string {
	return d.name
}

// reconnect replaces the connection. Callers must not hold d.mu unless noted;
// this method takes it itself.
func (d *WSDetector) reconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reconnectLocked()
}

func (d *WSDetector) reconnectLocked() error {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(d.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", d.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(d.writeTimeout))
		if err != nil {
			d.log.Warnf("Error sending pong to %s: %v", d.name, err)
		}
		return nil
	})

	d.conn = conn
	return nil
}

func (d *WSDetector) Detect(ctx context.Context, imagePath string) ([]RawDetection, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		if err := d.reconnectLocked(); err != nil {
			return nil, err
		}
	}

	deadline := time.Now().Add(d.readTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	if err := d.conn.SetWriteDeadline(time.Now().Add(d.writeTimeout)); err != nil {
		return nil, err
	}

	if err := d.conn.WriteMessage(websocket.BinaryMessage, imageData); err != nil {
		d.conn.Close()
		d.conn = nil
		return nil, fmt.Errorf("send frame: %w", err)
	}

	if err := d.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	var result struct {
		Detections []RawDetection `json:"detections"`
		Error      string         `json:"error"`
	}

	if err := d.conn.ReadJSON(&result); err != nil {
		d.conn.Close()
		d.conn = nil
		return nil, fmt.Errorf("read result: %w", err)
	}

	if result.Error != "" {
		return nil, fmt.Errorf("inference failed: %s", result.Error)
	}

	return result.Detections, nil
}

func (d *WSDetector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}
