package counters

import (
	"math"
	"testing"
)

func TestUnreadClamp(t *testing.T) {
	u := NewUnread()
	u.Set(2)
	u.Decrement(5)
	if u.Value() != 0 {
		t.Fatalf("ожидали 0 после decrement(5) от 2, получили %d", u.Value())
	}
	u.Set(-3)
	if u.Value() != 0 {
		t.Fatalf("ожидали 0 после set(-3), получили %d", u.Value())
	}
}

func TestUnreadNonFinite(t *testing.T) {
	u := NewUnread()
	u.Set(math.NaN())
	if u.Value() != 0 {
		t.Fatalf("NaN должен приводиться к 0")
	}
	u.Set(4)
	u.Increment(math.Inf(1))
	u.Decrement(math.NaN())
	if u.Value() != 4 {
		t.Fatalf("нечисловой шаг должен игнорироваться, получили %d", u.Value())
	}
	u.Set(math.Inf(1))
	if u.Value() != 0 {
		t.Fatalf("бесконечность должна приводиться к 0")
	}
}

func TestUnreadDefaultStep(t *testing.T) {
	u := NewUnread()
	u.Increment(0)
	u.Increment(2)
	if u.Value() != 3 {
		t.Fatalf("ожидали 3, получили %d", u.Value())
	}
	u.Decrement(0)
	if u.Value() != 2 {
		t.Fatalf("ожидали 2, получили %d", u.Value())
	}
}

func TestUnreadSubscribeKeepsLatest(t *testing.T) {
	u := NewUnread()
	ch, cancel := u.Subscribe()
	u.Set(1)
	u.Set(7)
	if got := <-ch; got != 7 {
		t.Fatalf("подписчик должен видеть последнее значение, получили %d", got)
	}
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("после отписки канал закрыт")
	}
	u.Set(9)
	cancel()
}
