package bili

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testImgKey = "7cd084941338484aae1ad9425b84077c"
	testSubKey = "4932caff0ff746eab6f01bf08b70ac45"
)

func TestMixinKey(t *testing.T) {
	mixed := MixinKey(testImgKey, testSubKey)
	require.Len(t, mixed, 32)

	// Deterministic across calls.
	require.Equal(t, mixed, MixinKey(testImgKey, testSubKey))

	// Every output character comes from the concatenated input.
	orig := testImgKey + testSubKey
	for _, r := range mixed {
		require.Contains(t, orig, string(r))
	}

	// A different pair mixes differently.
	require.NotEqual(t, mixed, MixinKey(testSubKey, testImgKey))
}

func TestSignSortsParamsLexicographically(t *testing.T) {
	now := time.Unix(1702204169, 0)

	a := Sign(map[string]string{"foo": "114", "bar": "514", "baz": "1919810"}, testImgKey, testSubKey, now)
	b := Sign(map[string]string{"baz": "1919810", "foo": "114", "bar": "514"}, testImgKey, testSubKey, now)

	require.Equal(t, a, b)
	require.True(t, strings.HasPrefix(a, "bar=514&baz=1919810&foo=114&wts=1702204169&w_rid="))
}

func TestSignDeterministicAndSensitive(t *testing.T) {
	now := time.Unix(1702204169, 0)
	params := map[string]string{"keyword": "suno", "page": "1"}

	first := Sign(params, testImgKey, testSubKey, now)
	second := Sign(params, testImgKey, testSubKey, now)
	require.Equal(t, first, second)

	changed := Sign(map[string]string{"keyword": "suno", "page": "2"}, testImgKey, testSubKey, now)
	require.NotEqual(t, wRidOf(t, first), wRidOf(t, changed))

	later := Sign(params, testImgKey, testSubKey, time.Unix(1702204170, 0))
	require.NotEqual(t, wRidOf(t, first), wRidOf(t, later))
}

func TestSignDigestCoversQueryAndMixinKey(t *testing.T) {
	now := time.Unix(1702204169, 0)
	signed := Sign(map[string]string{"foo": "114"}, testImgKey, testSubKey, now)

	query := "foo=114&wts=1702204169"
	sum := md5.Sum([]byte(query + MixinKey(testImgKey, testSubKey)))
	require.Equal(t, query+"&w_rid="+hex.EncodeToString(sum[:]), signed)
}

func TestSignEscapesSpecialCharacters(t *testing.T) {
	now := time.Unix(1702204169, 0)
	signed := Sign(map[string]string{"title": "a!b'c(d)e*f g"}, testImgKey, testSubKey, now)

	require.Contains(t, signed, "title=a%21b%27c%28d%29e%2Af%20g")
	require.NotContains(t, signed, "+")
	for _, lit := range []string{"!", "'", "(", ")", "*"} {
		require.NotContains(t, signed, "="+lit)
	}
}

func TestSignEncodesUnicode(t *testing.T) {
	now := time.Unix(1702204169, 0)
	signed := Sign(map[string]string{"keyword": "测试 video"}, testImgKey, testSubKey, now)
	require.Contains(t, signed, "keyword=%E6%B5%8B%E8%AF%95%20video")
}

func wRidOf(t *testing.T, signed string) string {
	t.Helper()
	m := regexp.MustCompile(`w_rid=([0-9a-f]{32})$`).FindStringSubmatch(signed)
	require.NotNil(t, m, "signed query %q has no w_rid", signed)
	return m[1]
}
