package logx

import (
	"testing"
	"time"
)

func TestThrottleAllow(t *testing.T) {
	t.Parallel()
	th := NewThrottle(time.Hour, 2)

	if !th.Allow("a") || !th.Allow("a") {
		t.Fatal("burst of 2 should be allowed")
	}
	if th.Allow("a") {
		t.Fatal("third event within the window should be suppressed")
	}
	// keys are independent
	if !th.Allow("b") {
		t.Fatal("fresh key should be allowed")
	}

	th.Forget("a")
	if !th.Allow("a") {
		t.Fatal("after Forget the key starts a fresh budget")
	}
}
