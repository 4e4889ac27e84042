package infra

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestNewRedisClientPings(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if err := client.Set(context.Background(), Key("ping", "a"), "1", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := mr.Exists("ping:a"); !got {
		t.Fatalf("expected namespaced key to exist")
	}
}

func TestNewRedisClientRequiresURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
