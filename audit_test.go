package authcore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowforward/authcore/token"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func buildAuditTestEngine(t *testing.T, mutate func(*Config), sink AuditSink) *Engine {
	t.Helper()

	clock := newTestClock()
	cfg := engineTestConfig(clock)
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16
	cfg.Audit.DropIfFull = true
	if mutate != nil {
		mutate(&cfg)
	}

	provider := newMockUserProvider()
	provider.addUser(t, "sub-alice", "alice", "correct-password-123", true)

	engine, err := New().
		WithConfig(cfg).
		WithTokenStore(token.NewMemoryStore()).
		WithUserProvider(provider).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return engine
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	engine := buildAuditTestEngine(t, func(cfg *Config) {
		cfg.Audit.Enabled = false
	}, sink)
	defer engine.Close()

	_, _ = engine.Login(WithClientIP(context.Background(), "203.0.113.1"), "alice", "wrong-password")
	time.Sleep(30 * time.Millisecond)

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditLoginFailureEventFields(t *testing.T) {
	sink := NewChannelSink(16)
	engine := buildAuditTestEngine(t, nil, sink)

	ctx := WithClientIP(context.Background(), "203.0.113.1")
	if _, err := engine.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	engine.Close()

	select {
	case evt := <-sink.Events():
		if evt.EventType != AuditLoginFailure {
			t.Fatalf("event type = %q", evt.EventType)
		}
		if evt.SubjectID != "sub-alice" {
			t.Fatalf("subject = %q", evt.SubjectID)
		}
		if evt.IP != "203.0.113.1" {
			t.Fatalf("ip = %q", evt.IP)
		}
		if evt.Success {
			t.Fatal("failure event marked success")
		}
		if evt.Error == "" {
			t.Fatal("failure event carries no error")
		}
	default:
		t.Fatal("no audit event received")
	}
}

func TestAuditReplayEventCarriesLineage(t *testing.T) {
	sink := NewChannelSink(32)
	engine := buildAuditTestEngine(t, nil, sink)
	ctx := context.Background()

	pair, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected ErrReplayDetected, got %v", err)
	}

	engine.Close()

	var replay *AuditEvent
	for {
		select {
		case evt := <-sink.Events():
			if evt.EventType == AuditReplayDetected {
				e := evt
				replay = &e
			}
			continue
		default:
		}
		break
	}

	if replay == nil {
		t.Fatal("no replay audit event emitted")
	}
	if replay.SubjectID != "sub-alice" || replay.FamilyID == "" || replay.TokenID == "" {
		t.Fatalf("replay event missing lineage: %+v", replay)
	}
}

func TestAuditDropIfFullCountsDrops(t *testing.T) {
	sink := newGateSink()
	engine := buildAuditTestEngine(t, func(cfg *Config) {
		cfg.Audit.BufferSize = 1
	}, sink)

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		_, _ = engine.Login(ctx, "alice", "wrong-password")
	}

	if engine.AuditDropped() == 0 {
		t.Fatal("expected dropped audit events with a blocked sink")
	}

	close(sink.gate)
	engine.Close()
}

func TestAuditJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	engine := buildAuditTestEngine(t, nil, NewJSONWriterSink(&buf))

	if _, err := engine.Login(context.Background(), "alice", "correct-password-123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	engine.Close()

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		var evt AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			t.Fatalf("line %d not valid JSON: %v", lines, err)
		}
		if evt.EventType == "" {
			t.Fatalf("line %d missing event type", lines)
		}
		lines++
	}
	if lines == 0 {
		t.Fatal("no audit lines written")
	}
}
