package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/jacobsa/go-serial/serial"
)

// Lines writes each packet as one JSON line.
type Lines struct {
	emitter
	mu  sync.Mutex
	enc *json.Encoder
}

// NewLines writes packets to w.
func NewLines(w io.Writer) *Lines {
	l := &Lines{enc: json.NewEncoder(w)}
	l.emitter = emitter{sink: l.write}
	return l
}

func (l *Lines) write(p Packet) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(p); err != nil {
		return fmt.Errorf("lines: write %s: %w", p.Type, err)
	}
	return nil
}

// OpenSerial opens a UART and returns a line transport over it. The caller
// closes the returned port.
func OpenSerial(port string, baud uint) (*Lines, io.Closer, error) {
	opts := serial.OpenOptions{
		PortName:        port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	rw, err := serial.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("serial: open %s: %w", port, err)
	}
	return NewLines(rw), rw, nil
}
