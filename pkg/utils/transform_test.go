package utils

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUint256(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    uint64
		wantErr bool
	}{
		{name: "empty is zero", in: "", want: 0},
		{name: "decimal", in: "31337", want: 31337},
		{name: "hex", in: "0x7a69", want: 31337},
		{name: "hex with leading zeros", in: "0x0001", want: 1},
		{name: "negative", in: "-1", wantErr: true},
		{name: "garbage", in: "abc", wantErr: true},
		{name: "overflow", in: "0x1" + strings.Repeat("0", 64), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUint256(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Uint64())
		})
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress(" 0x02101dfB77FDE026414827Fdc604ddAF224F0921 ")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x02101dfB77FDE026414827Fdc604ddAF224F0921"), addr)

	_, err = ParseAddress("0x1234")
	assert.Error(t, err)
}

func TestParseHexBytes(t *testing.T) {
	b, err := ParseHexBytes("0x")
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = ParseHexBytes("0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b)

	_, err = ParseHexBytes("deadbeef")
	assert.Error(t, err)
}

func TestReadCapped(t *testing.T) {
	b, err := ReadCapped(strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	_, err = ReadCapped(strings.NewReader("hello!"), 5)
	assert.Error(t, err)
}

func TestEnvBool(t *testing.T) {
	t.Setenv("TB_FLAG", "Yes")
	assert.True(t, EnvBool("TB_FLAG", false))
	t.Setenv("TB_FLAG", "off")
	assert.False(t, EnvBool("TB_FLAG", true))
	assert.True(t, EnvBool("TB_FLAG_UNSET", true))
}

// TestHashOrRead verifies plain secrets are hashed and existing hashes kept.
func TestHashOrRead(t *testing.T) {
	hash, err := HashOrRead("devtoken")
	require.NoError(t, err)
	assert.True(t, SecretMatches(hash, "devtoken"))
	assert.False(t, SecretMatches(hash, "devtoken2"))
	assert.False(t, SecretMatches(hash, ""))
	assert.False(t, SecretMatches(nil, "devtoken"))

	again, err := HashOrRead(string(hash))
	require.NoError(t, err)
	assert.Equal(t, hash, again)
}
