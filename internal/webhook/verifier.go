// Package webhook autentica callbacks entrantes del billing provider.
//
// Header esperado: t=<unix-seconds>,v1=<hex-hmac>[,v1=<hex-hmac>]*
// (sin whitespace). La firma es HMAC-SHA256 sobre "{timestamp}.{payload}".
// La comparación usa hmac.Equal: el tiempo no depende de dónde difieren los
// bytes ni de la longitud. Nunca se loguea el payload crudo.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrHeaderMalformed: header de firma ausente, con whitespace o sin t/v1.
	ErrHeaderMalformed = errors.New("webhook: malformed signature header")

	// ErrTimestampOutOfTolerance: |now - t| excede la tolerancia. Cubre
	// replay de eventos viejos y clock skew hacia el futuro.
	ErrTimestampOutOfTolerance = errors.New("webhook: timestamp out of tolerance")

	// ErrSignatureVerificationFailed: ningún candidato v1 verificó.
	ErrSignatureVerificationFailed = errors.New("webhook: signature verification failed")

	// ErrPayloadMalformed: firma OK pero el body no es un evento decodificable.
	ErrPayloadMalformed = errors.New("webhook: malformed event payload")
)

// DefaultTolerance es la ventana aceptada alrededor de now.
const DefaultTolerance = 300 * time.Second

// Event es el evento ya autenticado del provider.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

// Verifier es puro y stateless: seguro para llamar concurrentemente.
type Verifier struct {
	Secret    []byte
	Tolerance time.Duration

	// Now inyectable para tests. Nil => time.Now.
	Now func() time.Time
}

func NewVerifier(secret []byte) *Verifier {
	return &Verifier{Secret: secret, Tolerance: DefaultTolerance}
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Verify autentica (payload, header) y devuelve el evento decodificado.
func (v *Verifier) Verify(payload []byte, sigHeader string) (*Event, error) {
	ts, candidates, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	delta := v.now().Unix() - ts
	if delta < 0 {
		delta = -delta
	}
	if time.Duration(delta)*time.Second > tolerance {
		return nil, ErrTimestampOutOfTolerance
	}

	mac := hmac.New(sha256.New, v.Secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	expected := mac.Sum(nil)

	verified := false
	for _, cand := range candidates {
		cb, err := hex.DecodeString(cand)
		if err != nil {
			// hex roto en UN candidato no es fatal mientras otro verifique
			continue
		}
		if hmac.Equal(cb, expected) {
			verified = true
			// sin break: mismo trabajo haya match temprano o tardío
		}
	}
	if !verified {
		return nil, ErrSignatureVerificationFailed
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Type == "" {
		return nil, ErrPayloadMalformed
	}
	return &ev, nil
}

// parseSignatureHeader parsea "t=...,v1=...[,v1=...]". Schemes desconocidos
// se ignoran; whitespace embebido invalida el header completo.
func parseSignatureHeader(h string) (ts int64, v1s []string, err error) {
	if h == "" || strings.ContainsAny(h, " \t\r\n") {
		return 0, nil, ErrHeaderMalformed
	}
	sawT := false
	for _, part := range strings.Split(h, ",") {
		k, val, ok := strings.Cut(part, "=")
		if !ok || val == "" {
			return 0, nil, ErrHeaderMalformed
		}
		switch k {
		case "t":
			if sawT {
				return 0, nil, ErrHeaderMalformed
			}
			ts, err = strconv.ParseInt(val, 10, 64)
			if err != nil {
				return 0, nil, ErrHeaderMalformed
			}
			sawT = true
		case "v1":
			v1s = append(v1s, val)
		default:
			// otro scheme (v0, etc): ignorar
		}
	}
	if !sawT || len(v1s) == 0 {
		return 0, nil, ErrHeaderMalformed
	}
	return ts, v1s, nil
}
