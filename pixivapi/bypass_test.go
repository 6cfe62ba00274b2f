package pixivapi

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestDialTarget_PinsAPIEdgeOnly(t *testing.T) {
	ips := []string{"210.140.139.155", "210.140.139.156"}
	var next atomic.Uint64

	// Image downloads ride the same client; they must dial the host they
	// asked for, not a pinned API address.
	target, pinned, err := dialTarget("i.pximg.net:443", ips, &next)
	if err != nil {
		t.Fatal(err)
	}
	if pinned {
		t.Fatal("CDN host routed to the API pin")
	}
	if target != "i.pximg.net:443" {
		t.Fatalf("cdn target: %q", target)
	}

	target, pinned, err = dialTarget(APIHost+":443", ips, &next)
	if err != nil {
		t.Fatal(err)
	}
	if !pinned {
		t.Fatal("API edge not pinned")
	}
	if target != "210.140.139.155:443" && target != "210.140.139.156:443" {
		t.Fatalf("api target: %q", target)
	}
}

func TestDialTarget_RotatesPinsAndKeepsPort(t *testing.T) {
	ips := []string{"10.0.0.1", "10.0.0.2"}
	var next atomic.Uint64

	first, _, err := dialTarget(APIHost+":8443", ips, &next)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := dialTarget(APIHost+":8443", ips, &next)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("no rotation: %q twice", first)
	}
	for _, target := range []string{first, second} {
		if target != "10.0.0.1:8443" && target != "10.0.0.2:8443" {
			t.Fatalf("target: %q", target)
		}
	}
}

func TestDialTarget_MalformedAddr(t *testing.T) {
	var next atomic.Uint64
	if _, _, err := dialTarget("no-port", []string{"10.0.0.1"}, &next); err == nil {
		t.Fatal("expected error for address without port")
	}
}

func TestNewBypass_RejectsNonIP(t *testing.T) {
	_, err := NewBypass(context.Background(), []string{"not.an.ip.addr"}, time.Second)
	if err == nil {
		t.Fatal("expected error for non-IP pin")
	}
}
