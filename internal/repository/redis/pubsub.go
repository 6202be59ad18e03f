package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// ContentPubSub announces content invalidations to the frontend renderer,
// which holds its own page cache.
type ContentPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewContentPubSub(rdb *redis.Client) *ContentPubSub {
	return &ContentPubSub{
		rdb:     rdb,
		channel: ChannelContentChanged(),
	}
}

type ContentChanged struct {
	Type    string   `json:"type"`
	DocType string   `json:"doc_type"`
	Slug    string   `json:"slug"`
	Paths   []string `json:"paths"`
	TsUnix  int64    `json:"ts_unix"`
}

func (p *ContentPubSub) PublishContentChanged(ctx context.Context, docType, slug string, paths []string) error {
	msg := ContentChanged{
		Type:    "content_changed",
		DocType: docType,
		Slug:    slug,
		Paths:   paths,
		TsUnix:  time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}
