package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodec_Registered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	require.Equal(t, CodecName, c.Name())
}

func TestCodec_GetShareResponse(t *testing.T) {
	exp := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	in := GetShareResponse{
		Share: Share{
			Token: "t", DocumentID: "d", EncryptedDocumentKey: []byte{0, 1, 2},
			Permissions: Permissions{CanView: true}, ExpiresAt: exp, TTLSeconds: 60,
		},
		Document: &Document{ID: "d", EncryptedContent: []byte("ct"), Ver: 3},
	}
	b, err := Codec{}.Marshal(&in)
	require.NoError(t, err)

	var out GetShareResponse
	require.NoError(t, Codec{}.Unmarshal(b, &out))
	require.Equal(t, in.Share.EncryptedDocumentKey, out.Share.EncryptedDocumentKey)
	require.True(t, out.Share.ExpiresAt.Equal(exp))
	require.NotNil(t, out.Document)
	require.Equal(t, int64(3), out.Document.Ver)

	// deterministic
	again, _ := Codec{}.Marshal(&in)
	require.Equal(t, b, again)

	require.Error(t, Codec{}.Unmarshal([]byte{0xff, 0x00}, &out))
}
