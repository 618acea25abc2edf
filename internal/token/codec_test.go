package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-jwt-secret-key-32bytes-long!!"

// fakeClock はテスト用の進められる時計。
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCodec(t *testing.T, ttl time.Duration) (*Codec, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c, err := NewCodec(Config{Secret: []byte(testSecret), TTL: ttl}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return c, clock
}

// tamperSignature は署名セグメントの先頭文字を置き換える。
// 末尾の文字はパディングビットのみを含む場合があるため先頭を変更する。
func tamperSignature(t *testing.T, tok string) string {
	t.Helper()
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("token should have 3 segments, got %d", len(parts))
	}
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	parts[2] = string(sig)
	return strings.Join(parts, ".")
}

func TestNewCodec_RejectsShortSecret(t *testing.T) {
	_, err := NewCodec(Config{Secret: []byte("short"), TTL: time.Hour})
	if err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestNewCodec_RejectsSubMillisecondTTL(t *testing.T) {
	_, err := NewCodec(Config{Secret: []byte(testSecret), TTL: 999 * time.Microsecond})
	if err == nil {
		t.Fatal("expected error for TTL below 1ms")
	}
}

func TestNewCodec_CopiesSecret(t *testing.T) {
	secret := []byte(testSecret)
	c, err := NewCodec(Config{Secret: secret, TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	tok, err := c.Issue("alice@example.com", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// 呼び出し元のスライスを書き換えても検証結果に影響しないこと
	secret[0] ^= 0xFF
	if _, err := c.Verify(tok); err != nil {
		t.Errorf("Verify() after mutating caller secret error = %v", err)
	}
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	c, _ := newTestCodec(t, time.Hour)

	subjects := []string{
		"alice@example.com",
		"bob+tag@example.co.jp",
		"ユーザー@example.com",
	}
	for _, subject := range subjects {
		tok, err := c.Issue(subject, nil)
		if err != nil {
			t.Fatalf("Issue(%q) error = %v", subject, err)
		}

		claims, err := c.Verify(tok)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if claims.Subject != subject {
			t.Errorf("Subject = %q, want %q", claims.Subject, subject)
		}
	}
}

func TestIssue_SetsIssuedAtAndExpiry(t *testing.T) {
	c, clock := newTestCodec(t, 90*time.Minute)
	clock.Advance(400 * time.Millisecond)

	tok, err := c.Issue("alice@example.com", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := c.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	wantIAT := time.Unix(1_700_000_000, 0).Add(400 * time.Millisecond)
	if !claims.IssuedAt.Equal(wantIAT) {
		t.Errorf("IssuedAt = %v, want %v", claims.IssuedAt, wantIAT)
	}
	if !claims.ExpiresAt.Equal(wantIAT.Add(90 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, wantIAT.Add(90*time.Minute))
	}
}

// シナリオ1: TTL 1000msで発行し、直後に検証すると成功する
func TestVerify_ImmediatelyAfterIssue_Succeeds(t *testing.T) {
	c, _ := newTestCodec(t, 1000*time.Millisecond)

	tok, err := c.Issue("alice@example.com", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := c.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "alice@example.com" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "alice@example.com")
	}
}

// シナリオ2: 1001ms経過後の検証はErrExpiredTokenで失敗する
func TestVerify_AfterTTL_ReturnsExpired(t *testing.T) {
	c, clock := newTestCodec(t, 1000*time.Millisecond)

	tok, err := c.Issue("alice@example.com", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clock.Advance(1001 * time.Millisecond)

	_, err = c.Verify(tok)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("Verify() error = %v, want ErrExpiredToken", err)
	}
	if errors.Is(err, ErrMalformedToken) {
		t.Error("expired token must not be reported as malformed")
	}
}

// 秒の境界直前に発行しても、TTL全体にわたって有効であること
func TestVerify_IssuedLateInSecond_KeepsFullTTL(t *testing.T) {
	c, clock := newTestCodec(t, time.Second)
	clock.Advance(999 * time.Millisecond)

	tok, err := c.Issue("alice@example.com", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clock.Advance(time.Millisecond)
	if _, err := c.Verify(tok); err != nil {
		t.Fatalf("Verify() 1ms after issue error = %v", err)
	}

	clock.Advance(998 * time.Millisecond)
	if _, err := c.Verify(tok); err != nil {
		t.Fatalf("Verify() 999ms after issue error = %v", err)
	}

	clock.Advance(time.Millisecond)
	if _, err := c.Verify(tok); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("Verify() 1000ms after issue error = %v, want ErrExpiredToken", err)
	}
}

func TestVerify_MillisecondTTL(t *testing.T) {
	c, clock := newTestCodec(t, 1500*time.Millisecond)
	clock.Advance(250 * time.Millisecond)

	tok, err := c.Issue("alice@example.com", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clock.Advance(1200 * time.Millisecond)
	if _, err := c.Verify(tok); err != nil {
		t.Fatalf("Verify() 1.2s after issue error = %v", err)
	}

	clock.Advance(299 * time.Millisecond)
	claims, err := c.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() 1499ms after issue error = %v", err)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != 1500*time.Millisecond {
		t.Errorf("ExpiresAt - IssuedAt = %v, want 1.5s", got)
	}

	clock.Advance(time.Millisecond)
	if _, err := c.Verify(tok); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("Verify() 1500ms after issue error = %v, want ErrExpiredToken", err)
	}
}

func TestIssue_EncodesMillisecondNumericDates(t *testing.T) {
	c, clock := newTestCodec(t, 1500*time.Millisecond)
	clock.Advance(999 * time.Millisecond)

	tok, err := c.Issue("alice@example.com", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.Split(tok, ".")[1])
	if err != nil {
		t.Fatalf("payload decode error = %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("payload unmarshal error = %v", err)
	}
	if got := string(raw["iat"]); got != "1700000000.999" {
		t.Errorf("iat = %s, want 1700000000.999", got)
	}
	if got := string(raw["exp"]); got != "1700000002.499" {
		t.Errorf("exp = %s, want 1700000002.499", got)
	}
}

// 他の発行元が使う整数秒のクレームも受け付ける
func TestVerify_AcceptsWholeSecondClaims(t *testing.T) {
	c, _ := newTestCodec(t, time.Hour)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice@example.com",
		"iat": int64(1_700_000_000),
		"exp": int64(1_700_003_600),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	claims, err := c.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !claims.ExpiresAt.Equal(time.Unix(1_700_003_600, 0)) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, time.Unix(1_700_003_600, 0))
	}
}

func TestDecodeNumericDate(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name string
		in   any
		want time.Time
		ok   bool
	}{
		{"整数秒", json.Number("1700000000"), base, true},
		{"ミリ秒", json.Number("1700000000.999"), base.Add(999 * time.Millisecond), true},
		{"1桁の小数", json.Number("1700000000.5"), base.Add(500 * time.Millisecond), true},
		{"ミリ秒未満は切り捨て", json.Number("1700000000.0019"), base.Add(time.Millisecond), true},
		{"指数表記", json.Number("1.7e9"), base, true},
		{"float64", float64(1_700_000_000.25), base.Add(250 * time.Millisecond), true},
		{"文字列", "1700000000", time.Time{}, false},
		{"欠落", nil, time.Time{}, false},
		{"数値でない", json.Number("abc"), time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeNumericDate(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerify_ExpiryBoundaryIsExclusive(t *testing.T) {
	c, clock := newTestCodec(t, 10*time.Second)

	tok, err := c.Issue("alice@example.com", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clock.Advance(10*time.Second - time.Nanosecond)
	if _, err := c.Verify(tok); err != nil {
		t.Fatalf("Verify() just before expiry error = %v", err)
	}

	// now == expiresAt は失効
	clock.Advance(time.Nanosecond)
	_, err = c.Verify(tok)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("Verify() at expiry error = %v, want ErrExpiredToken", err)
	}
	if errors.Is(err, ErrMalformedToken) {
		t.Error("boundary failure must be ErrExpiredToken only")
	}
}

func TestVerify_TamperedSignature_ReturnsMalformed(t *testing.T) {
	c, _ := newTestCodec(t, time.Hour)

	tok, err := c.Issue("alice@example.com", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = c.Verify(tamperSignature(t, tok))
	if !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("Verify() error = %v, want ErrMalformedToken", err)
	}
}

func TestVerify_TamperedPayload_ReturnsMalformed(t *testing.T) {
	c, _ := newTestCodec(t, time.Hour)

	aliceTok, _ := c.Issue("alice@example.com", nil)
	malloryTok, _ := c.Issue("mallory@example.com", nil)

	// aliceの署名にmalloryのペイロードを組み合わせる
	a := strings.Split(aliceTok, ".")
	m := strings.Split(malloryTok, ".")
	forged := a[0] + "." + m[1] + "." + a[2]

	_, err := c.Verify(forged)
	if !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("Verify() error = %v, want ErrMalformedToken", err)
	}
}

func TestVerify_DifferentSecret_ReturnsMalformed(t *testing.T) {
	c, _ := newTestCodec(t, time.Hour)
	other, err := NewCodec(Config{Secret: []byte("another-secret-key-of-32-bytes!!!!"), TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	tok, err := other.Issue("alice@example.com", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = c.Verify(tok)
	if !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("Verify() error = %v, want ErrMalformedToken", err)
	}
}

func TestVerify_Garbage_ReturnsMalformed(t *testing.T) {
	c, _ := newTestCodec(t, time.Hour)

	for _, input := range []string{"", "garbage", "a.b.c", "not.a.jwt.token"} {
		_, err := c.Verify(input)
		if !errors.Is(err, ErrMalformedToken) {
			t.Errorf("Verify(%q) error = %v, want ErrMalformedToken", input, err)
		}
	}
}

func TestVerify_AlgNone_ReturnsMalformed(t *testing.T) {
	c, _ := newTestCodec(t, time.Hour)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "alice@example.com",
		"iat": time.Unix(1_700_000_000, 0).Unix(),
		"exp": time.Unix(1_700_003_600, 0).Unix(),
	})
	tok, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	_, err = c.Verify(tok)
	if !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("Verify() error = %v, want ErrMalformedToken", err)
	}
}

func TestVerify_MissingRequiredClaims_ReturnsMalformed(t *testing.T) {
	c, _ := newTestCodec(t, time.Hour)

	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{"missing sub", jwt.MapClaims{"iat": int64(1_700_000_000), "exp": int64(1_700_003_600)}},
		{"missing exp", jwt.MapClaims{"sub": "alice@example.com", "iat": int64(1_700_000_000)}},
		{"missing iat", jwt.MapClaims{"sub": "alice@example.com", "exp": int64(1_700_003_600)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tt.claims).SignedString([]byte(testSecret))
			if err != nil {
				t.Fatalf("SignedString() error = %v", err)
			}
			_, err = c.Verify(tok)
			if !errors.Is(err, ErrMalformedToken) {
				t.Errorf("Verify() error = %v, want ErrMalformedToken", err)
			}
		})
	}
}

func TestIssue_CarriesExtraClaims(t *testing.T) {
	c, _ := newTestCodec(t, time.Hour)

	tok, err := c.Issue("alice@example.com", map[string]any{"name": "Alice"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := c.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Extra["name"] != "Alice" {
		t.Errorf("Extra[name] = %v, want %q", claims.Extra["name"], "Alice")
	}
	if _, ok := claims.Extra["sub"]; ok {
		t.Error("registered claims must not appear in Extra")
	}
}

func TestIssue_EmptyExtraClaims(t *testing.T) {
	c, _ := newTestCodec(t, time.Hour)

	tok, err := c.Issue("alice@example.com", map[string]any{})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	claims, err := c.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(claims.Extra) != 0 {
		t.Errorf("Extra = %v, want empty", claims.Extra)
	}
}

func TestIssue_ReservedExtraClaim_ReturnsError(t *testing.T) {
	c, _ := newTestCodec(t, time.Hour)

	for _, key := range []string{"sub", "iat", "exp"} {
		if _, err := c.Issue("alice@example.com", map[string]any{key: "x"}); err == nil {
			t.Errorf("Issue() with extra %q should fail", key)
		}
	}
}

func TestIssue_EmptySubject_ReturnsError(t *testing.T) {
	c, _ := newTestCodec(t, time.Hour)

	if _, err := c.Issue("  ", nil); err == nil {
		t.Fatal("expected error for blank subject")
	}
}

func TestIssue_DeterministicForSameInstant(t *testing.T) {
	c, clock := newTestCodec(t, time.Hour)

	first, _ := c.Issue("alice@example.com", nil)
	second, _ := c.Issue("alice@example.com", nil)
	if first != second {
		t.Error("tokens issued at the same instant should be identical")
	}

	clock.Advance(time.Second)
	third, _ := c.Issue("alice@example.com", nil)
	if third == first {
		t.Error("tokens issued at different instants should differ")
	}
}

func TestExtractSubject_ReadsWithoutVerification(t *testing.T) {
	c, clock := newTestCodec(t, time.Second)

	tok, err := c.Issue("alice@example.com", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// 失効済みでも読み出せる
	clock.Advance(time.Hour)
	subject, err := c.ExtractSubject(tok)
	if err != nil {
		t.Fatalf("ExtractSubject() error = %v", err)
	}
	if subject != "alice@example.com" {
		t.Errorf("subject = %q, want %q", subject, "alice@example.com")
	}

	// 署名が壊れていても読み出せる
	subject, err = c.ExtractSubject(tamperSignature(t, tok))
	if err != nil {
		t.Fatalf("ExtractSubject() on tampered token error = %v", err)
	}
	if subject != "alice@example.com" {
		t.Errorf("subject = %q, want %q", subject, "alice@example.com")
	}
}

func TestExtractSubject_Garbage_ReturnsMalformed(t *testing.T) {
	c, _ := newTestCodec(t, time.Hour)

	_, err := c.ExtractSubject("garbage")
	if !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("ExtractSubject() error = %v, want ErrMalformedToken", err)
	}
}

func TestCodec_TTL(t *testing.T) {
	c, _ := newTestCodec(t, 42*time.Second)
	if c.TTL() != 42*time.Second {
		t.Errorf("TTL() = %v, want 42s", c.TTL())
	}
}
