package serialmux

import (
	"bytes"
	"errors"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// ScriptedPort is an in-memory SerialPorter for tests and dev mode. Reads
// block until lines are fed or the port is closed; writes are captured.
type ScriptedPort struct {
	mu      sync.Mutex
	cond    *sync.Cond
	read    bytes.Buffer
	written bytes.Buffer
	closed  bool
	eof     bool

	// WriteError, when set, is returned by the next Write.
	WriteError error
}

// NewScriptedPort returns an empty ScriptedPort.
func NewScriptedPort() *ScriptedPort {
	p := &ScriptedPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Feed queues data for readers.
func (p *ScriptedPort) Feed(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.read.WriteString(data)
	p.cond.Broadcast()
}

// EndOfStream makes Read return io.EOF-style end once the queued data is drained.
func (p *ScriptedPort) EndOfStream() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eof = true
	p.cond.Broadcast()
}

func (p *ScriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && !p.eof && p.read.Len() == 0 {
		p.cond.Wait()
	}
	if p.closed {
		return 0, errPortClosed
	}
	// bytes.Buffer returns io.EOF once drained
	return p.read.Read(b)
}

func (p *ScriptedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errPortClosed
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	return p.written.Write(b)
}

// Close wakes any blocked reader.
func (p *ScriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// Written returns everything written so far.
func (p *ScriptedPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}
