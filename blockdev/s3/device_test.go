package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.GetObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.PutObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.DeleteObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestDevice_ReadBlock(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 512)

	client := new(mockClient)
	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Bucket == "bucket" && *in.Key == "dev-1/blk-000000000000002a"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(payload))}, nil)

	d := NewDevice(client, "bucket", "dev-1/", 512)

	p := make([]byte, 512)
	require.NoError(t, d.ReadBlock(context.Background(), 42, p))
	assert.Equal(t, payload, p)

	client.AssertExpectations(t)
}

func TestDevice_ReadBlock_MissingReadsZeros(t *testing.T) {
	client := new(mockClient)
	client.On("GetObject", mock.Anything, mock.Anything).Return(nil, &types.NoSuchKey{})

	d := NewDevice(client, "bucket", "", 512)

	p := bytes.Repeat([]byte{0xff}, 512)
	require.NoError(t, d.ReadBlock(context.Background(), 7, p))
	assert.Equal(t, make([]byte, 512), p)
}

func TestDevice_ReadBlock_Errors(t *testing.T) {
	t.Run("transport error", func(t *testing.T) {
		boom := errors.New("connection reset")
		client := new(mockClient)
		client.On("GetObject", mock.Anything, mock.Anything).Return(nil, boom)

		d := NewDevice(client, "bucket", "", 512)
		require.ErrorIs(t, d.ReadBlock(context.Background(), 0, make([]byte, 512)), boom)
	})

	t.Run("short object", func(t *testing.T) {
		client := new(mockClient)
		client.On("GetObject", mock.Anything, mock.Anything).
			Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(make([]byte, 100)))}, nil)

		d := NewDevice(client, "bucket", "", 512)
		require.Error(t, d.ReadBlock(context.Background(), 0, make([]byte, 512)))
	})

	t.Run("bad payload length", func(t *testing.T) {
		d := NewDevice(new(mockClient), "bucket", "", 512)
		require.Error(t, d.ReadBlock(context.Background(), 0, make([]byte, 100)))
	})
}

func TestDevice_WriteBlock(t *testing.T) {
	payload := bytes.Repeat([]byte{0x11}, 512)

	client := new(mockClient)
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		if *in.Bucket != "bucket" || *in.Key != "blk-0000000000000007" {
			return false
		}
		body, err := io.ReadAll(in.Body)
		return err == nil && bytes.Equal(body, payload)
	})).Return(&s3.PutObjectOutput{}, nil)

	d := NewDevice(client, "bucket", "", 512)
	require.NoError(t, d.WriteBlock(context.Background(), 7, payload))

	client.AssertExpectations(t)
}

func TestDevice_TrimBlock(t *testing.T) {
	client := new(mockClient)
	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return *in.Key == "dev-2/blk-0000000000000001"
	})).Return(&s3.DeleteObjectOutput{}, nil)

	d := NewDevice(client, "bucket", "dev-2/", 512)
	require.NoError(t, d.TrimBlock(context.Background(), 1))

	client.AssertExpectations(t)
}
