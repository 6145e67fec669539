package social

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testTenant = uuid.MustParse("4f8a3cbb-2c3a-4a6e-9d7f-1b2c3d4e5f60")

func newTestMachine() (*Machine, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMachine(NewMemoryStateStore(), 10*time.Minute, 30*time.Second)
	m.Now = func() time.Time { return now }
	return m, &now
}

func begin(t *testing.T, m *Machine) string {
	t.Helper()
	tok, err := m.Begin(context.Background(), Record{
		TenantID: testTenant,
		Provider: "google",
		Nonce:    "n-1",
	})
	if err != nil {
		t.Fatalf("Begin err: %v", err)
	}
	return tok
}

func TestFlow_HappyPath(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine()
	tok := begin(t, m)

	rec, err := m.MarkCallback(ctx, tok)
	if err != nil {
		t.Fatalf("MarkCallback err: %v", err)
	}
	if rec.Status != StatusInUse || rec.Provider != "google" {
		t.Fatalf("record: %+v", rec)
	}
	if err := m.Complete(ctx, tok); err != nil {
		t.Fatalf("Complete err: %v", err)
	}

	// el record ya no existe
	if _, err := m.MarkCallback(ctx, tok); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("post-complete: want ErrStateNotFound, got %v", err)
	}
}

func TestDuplicateCallback_WithinWindow(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine()
	tok := begin(t, m)

	// callback duplicado (back/refresh del browser): ambos proceden
	if _, err := m.MarkCallback(ctx, tok); err != nil {
		t.Fatalf("primer callback err: %v", err)
	}
	if _, err := m.MarkCallback(ctx, tok); err != nil {
		t.Fatalf("callback duplicado dentro de la ventana err: %v", err)
	}

	// pero sólo un complete es posible
	if err := m.Complete(ctx, tok); err != nil {
		t.Fatalf("primer Complete err: %v", err)
	}
	if err := m.Complete(ctx, tok); !errors.Is(err, ErrStateAlreadyTerminal) {
		t.Fatalf("segundo Complete: want ErrStateAlreadyTerminal, got %v", err)
	}
}

func TestDuplicateCallback_WindowExpired(t *testing.T) {
	ctx := context.Background()
	m, now := newTestMachine()
	tok := begin(t, m)

	if _, err := m.MarkCallback(ctx, tok); err != nil {
		t.Fatalf("primer callback err: %v", err)
	}

	// justo adentro del borde
	*now = now.Add(30 * time.Second)
	if _, err := m.MarkCallback(ctx, tok); err != nil {
		t.Fatalf("a los 30s exactos debería poder reintentar: %v", err)
	}

	// pasada la ventana: error accionable, el flow se reinicia
	*now = now.Add(31 * time.Second)
	_, err := m.MarkCallback(ctx, tok)
	if !errors.Is(err, ErrRetryWindowExpired) {
		t.Fatalf("want ErrRetryWindowExpired, got %v", err)
	}
}

func TestMarkCallback_UnknownState(t *testing.T) {
	m, _ := newTestMachine()
	if _, err := m.MarkCallback(context.Background(), "nunca-emitido"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("want ErrStateNotFound, got %v", err)
	}
}

func TestAbort_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine()
	tok := begin(t, m)

	if _, err := m.MarkCallback(ctx, tok); err != nil {
		t.Fatalf("MarkCallback err: %v", err)
	}
	if err := m.Abort(ctx, tok); err != nil {
		t.Fatalf("Abort err: %v", err)
	}
	if err := m.Abort(ctx, tok); err != nil {
		t.Fatalf("Abort repetido err: %v", err)
	}
	if _, err := m.MarkCallback(ctx, tok); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("post-abort: want ErrStateNotFound, got %v", err)
	}
}

func TestBegin_TokensAreUnique(t *testing.T) {
	m, _ := newTestMachine()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		tok := begin(t, m)
		if seen[tok] {
			t.Fatalf("state token repetido")
		}
		seen[tok] = true
	}
}

func TestClassifyPostExchange(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Disposition
	}{
		{"retryable marcado", Retryable(errors.New("kv down")), DispositionRetry},
		{"retryable envuelto", fmt.Errorf("crear cuenta: %w", Retryable(errors.New("pool agotado"))), DispositionRetry},
		{"deadline", context.DeadlineExceeded, DispositionRetry},
		{"cancelado", context.Canceled, DispositionRetry},
		{"respuesta malformada", errors.New("missing email claim"), DispositionAbort},
		{"cuenta irresoluble", fmt.Errorf("resolve account: %w", errors.New("conflict")), DispositionAbort},
	}
	for _, tc := range cases {
		if got := ClassifyPostExchange(tc.err); got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}
