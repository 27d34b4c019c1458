package bili

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// mixinKeyTable is the permutation the platform publishes for WBI signing.
// The concatenated img_key+sub_key is shuffled through it and truncated to
// 32 characters. It must match byte-for-byte: a wrong table still produces
// a well-formed signature, the API just rejects it with a non-zero code.
var mixinKeyTable = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35, 27, 43, 5, 49,
	33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13, 37, 48, 7, 16, 24, 55, 40,
	61, 26, 17, 0, 1, 60, 51, 30, 4, 22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11,
	36, 20, 34, 44, 52,
}

// MixinKey derives the 32-character signing key from the key pair.
func MixinKey(imgKey, subKey string) string {
	orig := imgKey + subKey
	var b strings.Builder
	b.Grow(len(mixinKeyTable))
	for _, idx := range mixinKeyTable {
		if idx < len(orig) {
			b.WriteByte(orig[idx])
		}
	}
	mixed := b.String()
	if len(mixed) > 32 {
		mixed = mixed[:32]
	}
	return mixed
}

// Sign builds the signed query string for params: keys sorted in byte order,
// values escaped per RFC 3986, a wts timestamp injected, and w_rid appended
// as md5(query + MixinKey(imgKey, subKey)). Deterministic for a fixed clock.
func Sign(params map[string]string, imgKey, subKey string, now time.Time) string {
	query := make(map[string]string, len(params)+1)
	for k, v := range params {
		query[k] = v
	}
	query["wts"] = strconv.FormatInt(now.Unix(), 10)

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escape(k))
		b.WriteByte('=')
		b.WriteString(escape(query[k]))
	}
	qs := b.String()

	sum := md5.Sum([]byte(qs + MixinKey(imgKey, subKey)))
	return qs + "&w_rid=" + hex.EncodeToString(sum[:])
}

// escape encodes a query component per RFC 3986. url.QueryEscape already
// percent-encodes !'()* (which the signature requires), but uses '+' for
// spaces where the platform expects %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
