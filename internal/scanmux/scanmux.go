// Package scanmux provides an abstraction over the Wi-Fi scanner probe's
// serial port with the ability for multiple clients to subscribe to report
// lines from the probe and send commands to a single device.
package scanmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
)

var ErrWriteFailed = fmt.Errorf("failed to write to probe port")

// CommandScan asks the probe to run one Wi-Fi scan and emit a scan report
// line. CommandRange asks for a ranging attempt against the listed BSSIDs.
const (
	CommandScan  = "SCAN"
	CommandRange = "RANGE"
)

// ScanMux is a generic probe port multiplexer that allows multiple clients
// to subscribe to report lines from a single device.
type ScanMux[T ScanPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// ScanMuxInterface defines the interface for the ScanMux type.
type ScanMuxInterface interface {
	// Subscribe creates a new channel for receiving report lines from the
	// probe. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command to the probe port.
	SendCommand(string) error
	// Monitor reads lines from the probe port and sends them to the
	// appropriate channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the probe port.
	Close() error
	// AttachAdminRoutes attaches probe debugging endpoints to the given
	// HTTP mux.
	AttachAdminRoutes(*http.ServeMux)

	Initialize() error
}

// NewScanMux creates a ScanMux instance backed by the given port.
func NewScanMux[T ScanPorter](port T) *ScanMux[T] {
	return &ScanMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *ScanMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the scan mux.
func (s *ScanMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialize puts the probe into line-oriented JSON report mode.
func (s *ScanMux[T]) Initialize() error {
	for _, command := range []string{
		"MODE JSON", // one JSON object per line
		"FILTER *",  // report every visible BSS, hidden SSIDs included
	} {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send setup command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand sends a command to the probe port.
func (s *ScanMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n" // ensure command ends with a newline
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor monitors the probe port for report lines and sends them to
// subscribers.
func (s *ScanMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	// Scan reports with many visible APs overflow the default token size.
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// Read from the port in a separate goroutine so the blocking scan.Scan
	// does not interfere with the outer loop awaiting lines & context
	// cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			// if the channel is closed, we're done reading from the port
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}

			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					// if the channel is full/blocking skip so as not to block the outer loop
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *ScanMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}
