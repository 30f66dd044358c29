package rtc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
)

type fakeSource struct {
	packets chan *rtp.Packet

	mu     sync.Mutex
	closes int
}

func newFakeSource() *fakeSource {
	return &fakeSource{packets: make(chan *rtp.Packet, 64)}
}

func (s *fakeSource) ReadPacket() (*rtp.Packet, error) {
	pkt, ok := <-s.packets
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closes == 1 {
		close(s.packets)
	}
	return nil
}

func (s *fakeSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func testPacket(seq uint16) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: seq, SSRC: 42},
		Payload: []byte{0xde, 0xad},
	}
}

func TestAcquireOpenFailure(t *testing.T) {
	t.Parallel()

	opened := errors.New("device busy")
	d := NewCapture(func(context.Context) (PacketSource, error) { return nil, opened })
	if _, err := d.Acquire(context.Background()); !errors.Is(err, opened) {
		t.Fatalf("Acquire() error = %v, want wrapped open failure", err)
	}
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	d := NewCapture(func(context.Context) (PacketSource, error) { return src, nil })
	stream, err := d.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if got := src.closeCount(); got != 1 {
		t.Fatalf("source closed %d times, want exactly once", got)
	}
}

func TestSpeakingFollowsPacketFlow(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	d := NewCapture(func(context.Context) (PacketSource, error) { return src, nil })
	edges := make(chan bool, 8)
	d.OnSpeaking(func(active bool) { edges <- active })

	stream, err := d.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer stream.Close()

	feeding := make(chan struct{})
	go func() {
		seq := uint16(0)
		for {
			select {
			case <-feeding:
				return
			case <-time.After(20 * time.Millisecond):
				seq++
				src.packets <- testPacket(seq)
			}
		}
	}()

	select {
	case active := <-edges:
		if !active {
			t.Fatal("first edge must be speaking=true")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no speaking edge while packets flow")
	}

	close(feeding)
	select {
	case active := <-edges:
		if active {
			t.Fatal("edge after silence must be speaking=false")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no silence edge after packets stop")
	}
}

func TestDisabledStreamStaysSilent(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	d := NewCapture(func(context.Context) (PacketSource, error) { return src, nil })
	edges := make(chan bool, 8)
	d.OnSpeaking(func(active bool) { edges <- active })

	stream, err := d.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer stream.Close()
	stream.SetEnabled(false)

	for seq := uint16(1); seq <= 40; seq++ {
		src.packets <- testPacket(seq)
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case active := <-edges:
		t.Fatalf("got speaking edge %v while muted", active)
	default:
	}
}

func TestUDPSourceDeliversRTP(t *testing.T) {
	t.Parallel()

	src, err := OpenUDP("127.0.0.1:0")(context.Background())
	if err != nil {
		t.Fatalf("open udp source: %v", err)
	}
	defer src.Close()
	addr := src.(*UDPSource).conn.LocalAddr()

	sender, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sender.Close()

	want := testPacket(7)
	raw, err := want.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := sender.Write(raw); err != nil {
		t.Fatalf("send: %v", err)
	}

	got, err := src.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() error: %v", err)
	}
	if got.SequenceNumber != 7 || got.SSRC != 42 {
		t.Fatalf("packet header = %+v, want seq 7 ssrc 42", got.Header)
	}
}
