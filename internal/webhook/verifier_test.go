package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("whsec_test_0123456789")

const testPayload = `{"id":"evt_1","type":"customer.subscription.updated","created":1764590400,"data":{"object":{"status":"active"}}}`

func signHex(secret []byte, ts int64, payload string) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func fixedVerifier(now time.Time) *Verifier {
	v := NewVerifier(testSecret)
	v.Now = func() time.Time { return now }
	return v
}

func TestVerify_Valid(t *testing.T) {
	now := time.Unix(1764590400, 0)
	v := fixedVerifier(now)

	h := fmt.Sprintf("t=%d,v1=%s", now.Unix(), signHex(testSecret, now.Unix(), testPayload))
	ev, err := v.Verify([]byte(testPayload), h)
	require.NoError(t, err)
	require.Equal(t, "customer.subscription.updated", ev.Type)
	require.Equal(t, "evt_1", ev.ID)
}

func TestVerify_WrongSignatureAnyPosition(t *testing.T) {
	now := time.Unix(1764590400, 0)
	v := fixedVerifier(now)

	good := signHex(testSecret, now.Unix(), testPayload)
	flip := func(s string, i int) string {
		b := []byte(s)
		if b[i] == 'a' {
			b[i] = 'b'
		} else {
			b[i] = 'a'
		}
		return string(b)
	}

	// primer byte mal y último byte mal: mismo error, mismo camino de código
	for _, bad := range []string{flip(good, 0), flip(good, len(good)-1)} {
		h := fmt.Sprintf("t=%d,v1=%s", now.Unix(), bad)
		_, err := v.Verify([]byte(testPayload), h)
		require.ErrorIs(t, err, ErrSignatureVerificationFailed)
	}
}

func TestVerify_ToleranceBounds(t *testing.T) {
	now := time.Unix(1764590400, 0)
	v := fixedVerifier(now)

	cases := []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"299s en el pasado", -299 * time.Second, true},
		{"301s en el pasado", -301 * time.Second, false},
		{"299s en el futuro", 299 * time.Second, true},
		{"301s en el futuro", 301 * time.Second, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := now.Add(tc.offset).Unix()
			h := fmt.Sprintf("t=%d,v1=%s", ts, signHex(testSecret, ts, testPayload))
			_, err := v.Verify([]byte(testPayload), h)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrTimestampOutOfTolerance)
			}
		})
	}
}

func TestVerify_MultipleV1SecondValid(t *testing.T) {
	now := time.Unix(1764590400, 0)
	v := fixedVerifier(now)

	good := signHex(testSecret, now.Unix(), testPayload)
	wrong := signHex([]byte("otro-secreto"), now.Unix(), testPayload)

	h := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), wrong, good)
	_, err := v.Verify([]byte(testPayload), h)
	require.NoError(t, err)
}

func TestVerify_MalformedHexCandidateSkipped(t *testing.T) {
	now := time.Unix(1764590400, 0)
	v := fixedVerifier(now)

	good := signHex(testSecret, now.Unix(), testPayload)
	h := fmt.Sprintf("t=%d,v1=zzzz-not-hex,v1=%s", now.Unix(), good)
	_, err := v.Verify([]byte(testPayload), h)
	require.NoError(t, err)

	// si sólo hay candidatos rotos, falla como firma inválida
	h = fmt.Sprintf("t=%d,v1=zzzz-not-hex", now.Unix())
	_, err = v.Verify([]byte(testPayload), h)
	require.ErrorIs(t, err, ErrSignatureVerificationFailed)
}

func TestVerify_MalformedHeaders(t *testing.T) {
	now := time.Unix(1764590400, 0)
	v := fixedVerifier(now)
	good := signHex(testSecret, now.Unix(), testPayload)

	cases := []string{
		"",
		"v1=" + good,                                 // sin t
		fmt.Sprintf("t=%d", now.Unix()),              // sin v1
		fmt.Sprintf("t=abc,v1=%s", good),             // t no numérico
		fmt.Sprintf("t=%d, v1=%s", now.Unix(), good), // whitespace embebido
		fmt.Sprintf("t=%d,t=%d,v1=%s", now.Unix(), now.Unix(), good), // t duplicado
		fmt.Sprintf("t=%d,v1=", now.Unix()),          // valor vacío
	}
	for _, h := range cases {
		_, err := v.Verify([]byte(testPayload), h)
		require.ErrorIs(t, err, ErrHeaderMalformed, "header %q", h)
	}
}

func TestVerify_UnknownSchemeIgnored(t *testing.T) {
	now := time.Unix(1764590400, 0)
	v := fixedVerifier(now)

	good := signHex(testSecret, now.Unix(), testPayload)
	h := fmt.Sprintf("t=%d,v0=deadbeef,v1=%s", now.Unix(), good)
	_, err := v.Verify([]byte(testPayload), h)
	require.NoError(t, err)
}

func TestVerify_PayloadMalformed(t *testing.T) {
	now := time.Unix(1764590400, 0)
	v := fixedVerifier(now)

	payload := `not-json`
	h := fmt.Sprintf("t=%d,v1=%s", now.Unix(), signHex(testSecret, now.Unix(), payload))
	_, err := v.Verify([]byte(payload), h)
	require.ErrorIs(t, err, ErrPayloadMalformed)
}
