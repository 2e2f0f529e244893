package scanmux

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSendCommandAppendsNewline(t *testing.T) {
	port := NewTestableScanPort()
	mux := NewScanMux(port)

	if err := mux.SendCommand(CommandScan); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if got := string(port.GetWrittenData()); got != "SCAN\n" {
		t.Errorf("written command = %q, want %q", got, "SCAN\n")
	}

	if err := mux.SendCommand("MODE JSON\n"); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if got := string(port.GetWrittenData()); strings.Count(got, "\n") != 2 {
		t.Errorf("newline doubled or dropped: %q", got)
	}
}

func TestSendCommandWriteError(t *testing.T) {
	port := NewTestableScanPort()
	port.WriteError = errors.New("device gone")
	mux := NewScanMux(port)

	if err := mux.SendCommand(CommandScan); err == nil {
		t.Error("expected write error, got nil")
	}
}

func TestMonitorFansOutLines(t *testing.T) {
	port := NewTestableScanPort()
	port.BlockReads = true
	mux := NewScanMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitorDone := make(chan error, 1)
	go func() { monitorDone <- mux.Monitor(ctx) }()

	id1, ch1 := mux.Subscribe()
	defer mux.Unsubscribe(id1)
	id2, ch2 := mux.Subscribe()
	defer mux.Unsubscribe(id2)

	// Both subscribers must be receiving when the line lands, since the mux
	// drops sends to busy channels.
	got := make(chan string, 2)
	for _, ch := range []chan string{ch1, ch2} {
		go func(ch chan string) {
			got <- <-ch
		}(ch)
	}

	time.Sleep(50 * time.Millisecond)
	port.AddReadData([]byte("{\"aps\":[]}\n"))

	for i := 0; i < 2; i++ {
		select {
		case line := <-got:
			if line != `{"aps":[]}` {
				t.Errorf("subscriber got %q", line)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %d never received the line", i)
		}
	}

	cancel()
	select {
	case err := <-monitorDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor returned unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop on context cancellation")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	mux := NewScanMux(NewTestableScanPort())

	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after unsubscribe")
	}

	// Unsubscribing twice is harmless.
	mux.Unsubscribe(id)
}

func TestCloseClosesSubscribersAndPort(t *testing.T) {
	port := NewTestableScanPort()
	mux := NewScanMux(port)

	_, ch := mux.Subscribe()
	if err := mux.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, ok := <-ch; ok {
		t.Error("expected subscriber channel closed after Close")
	}
	if !port.Closed {
		t.Error("expected underlying port closed")
	}
}

func TestInitializeSendsSetupCommands(t *testing.T) {
	port := NewTestableScanPort()
	mux := NewScanMux(port)

	if err := mux.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	written := string(port.GetWrittenData())
	if !strings.Contains(written, "MODE JSON\n") {
		t.Errorf("missing MODE JSON setup command: %q", written)
	}
}

func TestPortOptionsNormalize(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if opts.BaudRate != 115200 || opts.DataBits != 8 || opts.StopBits != 1 || opts.Parity != "none" {
		t.Errorf("unexpected defaults: %+v", opts)
	}

	if _, err := (PortOptions{DataBits: 3}).Normalize(); err == nil {
		t.Error("expected error for invalid data bits")
	}
	if _, err := (PortOptions{StopBits: 3}).Normalize(); err == nil {
		t.Error("expected error for invalid stop bits")
	}
	if _, err := (PortOptions{Parity: "weird"}).SerialMode(); err == nil {
		t.Error("expected error for invalid parity")
	}
}
