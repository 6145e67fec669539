package magiclink

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sssemil/dokustatus-sub002/internal/kv"
)

var (
	tenantA = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	tenantB = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")
	acctA   = uuid.MustParse("cccccccc-0000-0000-0000-000000000003")
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(kv.NewMemory("test"), 15*time.Minute)
}

func grantA() Grant {
	return Grant{TenantID: tenantA, AccountID: acctA, Email: "ana@example.com"}
}

func TestGenerateConsume_HappyPath(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	raw, err := s.Generate(ctx, grantA())
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if raw == "" {
		t.Fatal("token crudo vacío")
	}
	g, err := s.Consume(ctx, raw, tenantA)
	if err != nil {
		t.Fatalf("Consume err: %v", err)
	}
	if g.AccountID != acctA || g.Email != "ana@example.com" {
		t.Fatalf("grant devuelto: %+v", g)
	}
}

func TestConsume_SingleUse(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	raw, _ := s.Generate(ctx, grantA())
	if _, err := s.Consume(ctx, raw, tenantA); err != nil {
		t.Fatalf("primer consumo err: %v", err)
	}
	// replay: mismo token, segunda vez
	if _, err := s.Consume(ctx, raw, tenantA); !errors.Is(err, ErrLinkInvalidOrExpired) {
		t.Fatalf("segundo consumo: want ErrLinkInvalidOrExpired, got %v", err)
	}
}

func TestConsume_WrongTenantIndistinguishable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	raw, _ := s.Generate(ctx, grantA())

	_, errWrong := s.Consume(ctx, raw, tenantB)
	_, errMiss := s.Consume(ctx, "no-such-token", tenantB)
	if !errors.Is(errWrong, ErrLinkInvalidOrExpired) || !errors.Is(errMiss, ErrLinkInvalidOrExpired) {
		t.Fatalf("wrong-tenant=%v miss=%v: ambos deben ser el error genérico", errWrong, errMiss)
	}
	// y el error es exactamente el mismo valor (sin canal de enumeración)
	if errWrong.Error() != errMiss.Error() {
		t.Fatalf("mensajes distintos: %q vs %q", errWrong, errMiss)
	}

	// el token sigue siendo válido para su tenant real? Sí: el intento con
	// tenant B no borró nada (hash distinto), así que A todavía puede.
	if _, err := s.Consume(ctx, raw, tenantA); err != nil {
		t.Fatalf("consumo legítimo post intento ajeno err: %v", err)
	}
}

func TestConsume_Expired(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kv.NewMemory(""), 20*time.Millisecond)

	raw, _ := s.Generate(ctx, grantA())
	time.Sleep(40 * time.Millisecond)
	if _, err := s.Consume(ctx, raw, tenantA); !errors.Is(err, ErrLinkInvalidOrExpired) {
		t.Fatalf("want ErrLinkInvalidOrExpired, got %v", err)
	}
}

func TestConsume_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	raw, _ := s.Generate(ctx, grantA())

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, raw, tenantA); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	got := 0
	for range wins {
		got++
	}
	if got != 1 {
		t.Fatalf("ganadores concurrentes: got %d want 1", got)
	}
}

func TestHashFields_LengthPrefixNoCollision(t *testing.T) {
	// "ab"+"c" y "a"+"bc" concatenan a los mismos bytes; con length-prefix
	// los hashes tienen que diferir.
	h1 := hashFields([]byte("ab"), []byte("c"))
	h2 := hashFields([]byte("a"), []byte("bc"))
	if bytes.Equal(h1, h2) {
		t.Fatal("colisión bajo length-prefix")
	}

	// campo vacío tampoco colisiona con ausencia de campo
	h3 := hashFields([]byte("abc"), nil)
	h4 := hashFields([]byte("abc"))
	if bytes.Equal(h3, h4) {
		t.Fatal("campo vacío colisiona con campo ausente")
	}
}

func TestHashKey_DiffersPerTenant(t *testing.T) {
	if HashKey("tok", tenantA) == HashKey("tok", tenantB) {
		t.Fatal("misma key para tenants distintos")
	}
}
