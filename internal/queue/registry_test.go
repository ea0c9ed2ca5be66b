package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func stubPublisher(tag string) Publisher {
	return PublisherFunc(func(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
		return &PublishResult{Success: true, Data: map[string]any{"tag": tag}}, nil
	})
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Resolve("wechat")
	require.False(t, ok)

	r.Register("wechat", stubPublisher("a"))
	p, ok := r.Resolve("wechat")
	require.True(t, ok)
	res, err := p.Publish(context.Background(), &PublishRequest{})
	require.NoError(t, err)
	require.Equal(t, "a", res.Data["tag"])
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	r.Register("wechat", stubPublisher("old"))
	r.Register("wechat", stubPublisher("new"))

	p, ok := r.Resolve("wechat")
	require.True(t, ok)
	res, err := p.Publish(context.Background(), &PublishRequest{})
	require.NoError(t, err)
	require.Equal(t, "new", res.Data["tag"])
}

func TestRegistryPlatformsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("zhihu", stubPublisher("z"))
	r.Register("wechat", stubPublisher("w"))
	r.Register("xiaohongshu", stubPublisher("x"))

	require.Equal(t, []string{"wechat", "xiaohongshu", "zhihu"}, r.Platforms())
}
