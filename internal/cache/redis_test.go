package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"faultline/internal/channel"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	if _, err := NewRedisCache("not-a-url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestSaveLookupForget(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()
	id := channel.MessageID(1180000000000000001)

	if _, ok, err := c.Lookup(ctx, id); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	msg := channel.Message{Embeds: []channel.Embed{{
		Title:  "boom",
		Footer: &channel.EmbedFooter{Text: "This error has occurred 2 times!"},
	}}}
	if err := c.Save(ctx, id, msg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, ok, err := c.Lookup(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Lookup failed: ok=%v err=%v", ok, err)
	}
	if got.Embeds[0].Footer.Text != "This error has occurred 2 times!" {
		t.Errorf("unexpected footer %q", got.Embeds[0].Footer.Text)
	}

	if err := c.Forget(ctx, id); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if _, ok, _ := c.Lookup(ctx, id); ok {
		t.Error("expected entry to be gone after Forget")
	}
}

func TestAdvanceShownIsMonotonic(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()
	id := channel.MessageID(7)

	steps := []struct {
		n    int64
		want bool
	}{
		{1, true},
		{3, true},
		{2, false},
		{3, false},
		{4, true},
	}
	for _, step := range steps {
		got, err := c.AdvanceShown(ctx, id, step.n)
		if err != nil {
			t.Fatalf("AdvanceShown(%d) failed: %v", step.n, err)
		}
		if got != step.want {
			t.Errorf("AdvanceShown(%d) = %v, want %v", step.n, got, step.want)
		}
	}

	shown, err := c.Shown(ctx, id)
	if err != nil {
		t.Fatalf("Shown failed: %v", err)
	}
	if shown != 4 {
		t.Errorf("Shown = %d, want 4", shown)
	}
	if shown, err := c.Shown(ctx, 8); err != nil || shown != 0 {
		t.Errorf("Shown for unknown message = %d err=%v, want 0", shown, err)
	}
}

func TestEntriesExpire(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	c := NewRedisCacheWithClient(client).WithTTL(time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	if err := c.Save(ctx, 9, channel.Message{Content: "x"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := c.AdvanceShown(ctx, 9, 1); err != nil {
		t.Fatalf("AdvanceShown failed: %v", err)
	}
	s.FastForward(2 * time.Minute)

	if _, ok, _ := c.Lookup(ctx, 9); ok {
		t.Error("expected entry to expire")
	}
	advanced, err := c.AdvanceShown(ctx, 9, 1)
	if err != nil || !advanced {
		t.Errorf("expected shown count to reset after expiry, got %v err=%v", advanced, err)
	}
}
