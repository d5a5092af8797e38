package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"time"

	"download-gate-service/domain"
)

const (
	DefaultBucketWidth = 60 * time.Second
	DefaultBuckets     = 5
)

// TokenCodec derives short-lived client tokens from a shared secret.
// Nothing is stored: a token is valid while it matches the digest of the
// current bucket or one of the previous buckets-1.
type TokenCodec struct {
	secret      []byte
	bucketWidth time.Duration
	buckets     int
}

func NewTokenCodec(secret string, bucketWidth time.Duration, buckets int) TokenCodec {
	if bucketWidth <= 0 {
		bucketWidth = DefaultBucketWidth
	}
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	return TokenCodec{
		secret:      []byte(secret),
		bucketWidth: bucketWidth,
		buckets:     buckets,
	}
}

func (c TokenCodec) Issue(key domain.ClientKey, now time.Time) string {
	return c.digest(key, c.bucketStart(now))
}

func (c TokenCodec) Verify(candidate string, key domain.ClientKey, now time.Time) bool {
	if candidate == "" {
		return false
	}
	start := c.bucketStart(now)
	match := 0
	for i := 0; i < c.buckets; i++ {
		expected := c.digest(key, start.Add(-time.Duration(i)*c.bucketWidth))
		match |= subtle.ConstantTimeCompare([]byte(expected), []byte(candidate))
	}
	return match == 1
}

// ExpiresAt returns the moment a token issued at now stops verifying.
func (c TokenCodec) ExpiresAt(now time.Time) time.Time {
	return c.bucketStart(now).Add(time.Duration(c.buckets) * c.bucketWidth)
}

func (c TokenCodec) bucketStart(t time.Time) time.Time {
	width := c.bucketWidth.Milliseconds()
	ms := t.UnixMilli()
	return time.UnixMilli(ms - ms%width)
}

func (c TokenCodec) digest(key domain.ClientKey, bucketStart time.Time) string {
	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write([]byte(string(key) + "-" + strconv.FormatInt(bucketStart.UnixMilli(), 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
