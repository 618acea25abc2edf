// Package token は自己完結型のセッショントークン（HS256署名のJWT）の発行と検証を提供する。
// サーバー側にセッション状態を一切持たない。
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// minSecretLength はHS256署名鍵の最小バイト数（256bit）。
const minSecretLength = 32

// timePrecision はiat/expの精度。TTLはミリ秒で設定されるため同じ精度で埋め込む。
const timePrecision = time.Millisecond

var (
	// ErrMalformedToken はデコード・署名検証・必須クレームの検証に失敗したことを示す。
	ErrMalformedToken = errors.New("malformed token")
	// ErrExpiredToken は署名は正しいが有効期限を過ぎていることを示す。
	ErrExpiredToken = errors.New("token expired")
)

// reservedClaims は追加クレームで上書きできない登録済みクレーム名。
var reservedClaims = map[string]struct{}{
	"sub": {},
	"iat": {},
	"exp": {},
}

// Claims は検証済みトークンから取り出したクレーム。
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// Config はCodecの設定。起動時に1回だけ構築し、以後変更しない。
type Config struct {
	Secret []byte
	TTL    time.Duration
}

// Option はCodecの生成オプション。
type Option func(*Codec)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// Codec はセッショントークンのエンコード・デコードを行う。
// 生成後は読み取り専用のため、複数のgoroutineから同時に利用できる。
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec はCodecを生成する。
// 署名鍵が32バイト未満、またはTTLが1ミリ秒未満の場合はエラーを返す。
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", minSecretLength)
	}
	if cfg.TTL < timePrecision {
		return nil, fmt.Errorf("token TTL must be at least %v, got %v", timePrecision, cfg.TTL)
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	c := &Codec{
		secret: secret,
		ttl:    cfg.TTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL はトークンの有効期間を返す。
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue はsubjectに対するトークンを発行する。
// issuedAtはミリ秒単位に切り捨て、expiresAt = issuedAt + TTL とする。
// iat/expは小数点以下3桁までの秒数（RFC 7519のNumericDate）として埋め込む。
// extraは不透明な追加クレームとしてそのまま埋め込む。sub/iat/expは指定できない。
func (c *Codec) Issue(subject string, extra map[string]any) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("subject is required")
	}

	claims := jwt.MapClaims{}
	for k, v := range extra {
		if _, reserved := reservedClaims[k]; reserved {
			return "", fmt.Errorf("extra claim %q is reserved", k)
		}
		claims[k] = v
	}

	issuedAt := c.now().Truncate(timePrecision)
	claims["sub"] = subject
	claims["iat"] = encodeNumericDate(issuedAt)
	claims["exp"] = encodeNumericDate(issuedAt.Add(c.ttl).Truncate(timePrecision))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify は署名と有効期限を検証し、クレームを返す。
// 署名不正・デコード失敗・必須クレーム欠落はErrMalformedToken、
// now >= expiresAt の場合はErrExpiredTokenを返す。
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	mapClaims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, mapClaims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithJSONNumber(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	claims, err := toClaims(mapClaims)
	if err != nil {
		return nil, err
	}

	// 有効期限は排他的: now == expiresAt は失効扱い
	if !c.now().Before(claims.ExpiresAt) {
		return nil, ErrExpiredToken
	}

	return claims, nil
}

// ExtractSubject は署名を検証せずにsubjectクレームを読み出す。
// ログ出力専用であり、認証判定に用いてはならない。
func (c *Codec) ExtractSubject(tokenString string) (string, error) {
	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, mapClaims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	subject, err := mapClaims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	return subject, nil
}

// toClaims は必須クレーム（sub, iat, exp）を取り出す。
func toClaims(m jwt.MapClaims) (*Claims, error) {
	subject, err := m.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}

	exp, ok := decodeNumericDate(m["exp"])
	if !ok {
		return nil, fmt.Errorf("%w: missing exp", ErrMalformedToken)
	}

	iat, ok := decodeNumericDate(m["iat"])
	if !ok {
		return nil, fmt.Errorf("%w: missing iat", ErrMalformedToken)
	}

	extra := make(map[string]any)
	for k, v := range m {
		if _, reserved := reservedClaims[k]; !reserved {
			extra[k] = v
		}
	}

	return &Claims{
		Subject:   subject,
		IssuedAt:  iat,
		ExpiresAt: exp,
		Extra:     extra,
	}, nil
}

// encodeNumericDate は時刻をミリ秒精度の秒数リテラルにする。
// 浮動小数点を経由しないため、デコード時に値がずれない。
func encodeNumericDate(t time.Time) json.Number {
	ms := t.UnixMilli()
	sign := ""
	if ms < 0 {
		sign, ms = "-", -ms
	}
	sec, frac := ms/1000, ms%1000
	if frac == 0 {
		return json.Number(sign + strconv.FormatInt(sec, 10))
	}
	return json.Number(fmt.Sprintf("%s%d.%03d", sign, sec, frac))
}

// decodeNumericDate はNumericDateをミリ秒精度で読み取る。
// 10進表記の1ミリ秒未満の端数は切り捨てる。
func decodeNumericDate(v any) (time.Time, bool) {
	var raw string
	switch n := v.(type) {
	case json.Number:
		raw = n.String()
	case float64:
		raw = strconv.FormatFloat(n, 'f', -1, 64)
	default:
		return time.Time{}, false
	}

	if ms, ok := parseDecimalMillis(raw); ok {
		return time.UnixMilli(ms).UTC(), true
	}

	// 指数表記など10進小数以外の表現
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64/1000 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(math.Round(f * 1000))).UTC(), true
}

// parseDecimalMillis は "1700000000" や "1700000000.999" 形式の秒数をミリ秒に変換する。
func parseDecimalMillis(raw string) (int64, bool) {
	whole, frac, _ := strings.Cut(raw, ".")
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return 0, false
	}
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || sec > math.MaxInt64/1000-1 {
		return 0, false
	}

	frac = (frac + "000")[:3]
	ms, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, false
	}
	return sec*1000 + ms, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
