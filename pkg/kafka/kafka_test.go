package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestEncode(t *testing.T) {
	b, err := Encode(map[string]int{"n": 1})
	if err != nil || string(b) != `{"n":1}` {
		t.Fatalf("json: %s %v", b, err)
	}
	if b, _ := Encode("raw"); string(b) != "raw" {
		t.Fatalf("string: %s", b)
	}
	if _, err := Encode(make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestHeadersRoundTrip(t *testing.T) {
	km := kafka.Message{Headers: toHeaders(map[string]string{HeaderRunID: "abc", "b": "2"})}
	if len(km.Headers) != 2 || km.Headers[0].Key != "b" {
		t.Fatalf("headers not sorted: %+v", km.Headers)
	}
	if got := Header(km, HeaderRunID); got != "abc" {
		t.Fatalf("run id header: %q", got)
	}
	if Header(km, "missing") != "" {
		t.Fatalf("missing header must be empty")
	}
}

func TestBackoffBounds(t *testing.T) {
	for attempt := 1; attempt <= 40; attempt++ {
		d := Backoff(100*time.Millisecond, 2*time.Second, attempt)
		if d <= 0 || d > 2*time.Second {
			t.Fatalf("attempt %d: %s out of range", attempt, d)
		}
	}
	if d := Backoff(100*time.Millisecond, 2*time.Second, 1); d < 50*time.Millisecond {
		t.Fatalf("first attempt too short: %s", d)
	}
}

func TestHookChainOrderAndPanic(t *testing.T) {
	var order []string
	mk := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				order = append(order, "before-"+name)
				return ctx, km, append(data, name...), nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) {
				order = append(order, "after-"+name)
			},
		}
	}
	chain := NewHookChain(mk("a"), nil, mk("b"))
	ctx, km, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte(">"))
	if err != nil || string(data) != ">ab" {
		t.Fatalf("before: %q %v", data, err)
	}
	chain.AfterHandle(ctx, "t", km, data, nil)
	want := []string{"before-a", "before-b", "after-b", "after-a"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order %v, want %v", order, want)
		}
	}

	boom := HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
		panic("boom")
	}}
	_, _, _, err = NewHookChain(boom).BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	if !errors.As(err, &he) || he.Code != "ERR_PANIC" {
		t.Fatalf("expected ERR_PANIC, got %v", err)
	}
}

func TestRunIDHook(t *testing.T) {
	h := RunIDHook(nil)
	km := kafka.Message{Headers: toHeaders(map[string]string{HeaderRunID: "run-7"})}
	ctx, _, _, err := h.BeforeHandle(context.Background(), "t", km, nil)
	if err != nil || RunIDFrom(ctx) != "run-7" {
		t.Fatalf("run id not propagated: %q %v", RunIDFrom(ctx), err)
	}
	h.AfterHandle(ctx, "t", km, nil, errors.New("x"))
}

func TestConstructorsRequireBrokers(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("producer without brokers")
	}
	if _, err := NewConsumer(); err == nil {
		t.Fatalf("consumer without brokers")
	}
}
