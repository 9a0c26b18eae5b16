package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/margex/gotrade/internal/domain"
)

func TestMemorySinkPagination(t *testing.T) {
	s := NewMemorySink()
	for i := 0; i < 5; i++ {
		entry := NewEntry(context.Background(), "u1", domain.AuditOrderCreated, map[string]any{"n": i})
		if err := s.Append(entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := s.Append(NewEntry(context.Background(), "u2", domain.AuditOrderCreated, nil)); err != nil {
		t.Fatalf("append: %v", err)
	}

	page, total, err := s.List("u1", 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 {
		t.Fatalf("total got=%d want=5", total)
	}
	if len(page) != 2 {
		t.Fatalf("page got=%d want=2", len(page))
	}

	// Offset past the end returns an empty page but the true total.
	page, total, err = s.List("u1", 10, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(page) != 0 {
		t.Fatalf("got page=%d total=%d, want 0/5", len(page), total)
	}
}

func TestNewEntryCarriesActor(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{IP: "203.0.113.9", UserAgent: "curl/8.5"})
	entry := NewEntry(ctx, "u1", domain.AuditOrderCreated, nil)
	if entry.IPAddress != "203.0.113.9" {
		t.Fatalf("ip got=%q want=203.0.113.9", entry.IPAddress)
	}
	if entry.UserAgent != "curl/8.5" {
		t.Fatalf("userAgent got=%q want=curl/8.5", entry.UserAgent)
	}

	// No actor on the context leaves the fields empty.
	bare := NewEntry(context.Background(), "u1", domain.AuditOrderCreated, nil)
	if bare.IPAddress != "" || bare.UserAgent != "" {
		t.Fatalf("expected empty actor fields, got %q/%q", bare.IPAddress, bare.UserAgent)
	}
}

func TestBadgerSinkAppendOrder(t *testing.T) {
	sink, err := OpenBadgerSink(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sink.Close()

	for i := 0; i < 10; i++ {
		entry := NewEntry(context.Background(), "u1", domain.AuditBalanceUpdated, map[string]any{"seq": fmt.Sprintf("%03d", i)})
		if err := sink.Append(entry); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	page, total, err := sink.List("u1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 10 || len(page) != 10 {
		t.Fatalf("got page=%d total=%d, want 10/10", len(page), total)
	}
	for i, e := range page {
		want := fmt.Sprintf("%03d", i)
		if e.Metadata["seq"] != want {
			t.Fatalf("entry %d out of order: got %v want %s", i, e.Metadata["seq"], want)
		}
	}
}

func TestBadgerSinkUserFilter(t *testing.T) {
	sink, err := OpenBadgerSink(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sink.Close()

	if err := sink.Append(NewEntry(context.Background(), "u1", domain.AuditUserRegistered, nil)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := sink.Append(NewEntry(context.Background(), "u2", domain.AuditUserRegistered, nil)); err != nil {
		t.Fatalf("append: %v", err)
	}

	_, total, err := sink.List("u2", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 {
		t.Fatalf("total got=%d want=1", total)
	}
}
