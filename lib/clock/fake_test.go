// Copyright 2026 The Edgehop Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNow(t *testing.T) {
	c := Fake(testEpoch)
	if !c.Now().Equal(testEpoch) {
		t.Errorf("Now = %v, want %v", c.Now(), testEpoch)
	}

	c.Advance(5 * time.Second)
	want := testEpoch.Add(5 * time.Second)
	if !c.Now().Equal(want) {
		t.Errorf("Now after Advance = %v, want %v", c.Now(), want)
	}
}

func TestFakeAfter(t *testing.T) {
	c := Fake(testEpoch)
	done := c.After(10 * time.Second)

	select {
	case <-done:
		t.Fatal("After fired before the clock advanced")
	default:
	}

	c.Advance(9 * time.Second)
	select {
	case <-done:
		t.Fatal("After fired before its deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case fired := <-done:
		want := testEpoch.Add(10 * time.Second)
		if !fired.Equal(want) {
			t.Errorf("fire time = %v, want %v", fired, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	c := Fake(testEpoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeTicker(t *testing.T) {
	c := Fake(testEpoch)
	ticker := c.NewTicker(5 * time.Second)
	defer ticker.Stop()

	c.Advance(5 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after one interval")
	}

	// A multi-interval advance fires once per boundary, but the
	// capacity-1 channel drops ticks the consumer has not drained.
	c.Advance(15 * time.Second)
	ticks := 0
	for {
		select {
		case <-ticker.C:
			ticks++
			continue
		default:
		}
		break
	}
	if ticks != 1 {
		t.Errorf("undrained ticks = %d, want 1 (capacity-1 drop behavior)", ticks)
	}
}

func TestFakeTickerStop(t *testing.T) {
	c := Fake(testEpoch)
	ticker := c.NewTicker(time.Second)
	ticker.Stop()

	c.Advance(10 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount = %d after Stop, want 0", c.PendingCount())
	}
}

func TestWaitForTimers(t *testing.T) {
	c := Fake(testEpoch)

	registered := make(chan struct{})
	fired := make(chan struct{})
	go func() {
		done := c.After(time.Second)
		close(registered)
		<-done
		close(fired)
	}()

	<-registered
	c.WaitForTimers(1)
	c.Advance(time.Second)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not fire after Advance")
	}
}
