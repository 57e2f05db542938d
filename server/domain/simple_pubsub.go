package domain

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultChannelBuffer は購読チャネルの既定のバッファサイズです。
// ルームは 1 ティックの間に届いたフレームをまとめて読むので、その間に溜まる分を見込んでいます。
const DefaultChannelBuffer = 1024

// PubSubStats は配送の統計です。
type PubSubStats struct {
	Topics      int    `json:"topics"`
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

type PubSubOption func(*SimplePubSub)

// WithChannelBuffer は購読チャネルのバッファサイズを指定します。
func WithChannelBuffer(n int) PubSubOption {
	return func(p *SimplePubSub) { p.buffer = n }
}

// SimplePubSub はプロセス内で完結する PubSub です。
// 購読者が詰まっている場合は待たずに捨て、その数を Stats で報告します。
type SimplePubSub struct {
	buffer int

	// mu は購読者の集合を守ります。Publish は読み取りロックのまま送るので、
	// Unsubscribe の close と送信が競合しません。
	mu     sync.RWMutex
	topics map[Topic]map[<-chan Message]chan Message

	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewSimplePubSub(opts ...PubSubOption) *SimplePubSub {
	p := &SimplePubSub{
		buffer: DefaultChannelBuffer,
		topics: make(map[Topic]map[<-chan Message]chan Message),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TopicCount は購読者のいるトピック数を返します。
func (p *SimplePubSub) TopicCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.topics)
}

func (p *SimplePubSub) Stats() PubSubStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := PubSubStats{
		Topics:    len(p.topics),
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
	}
	for _, subs := range p.topics {
		st.Subscribers += len(subs)
	}
	return st
}

func (p *SimplePubSub) Subscribe(topic Topic) <-chan Message {
	ch := make(chan Message, p.buffer)
	p.mu.Lock()
	defer p.mu.Unlock()
	subs, ok := p.topics[topic]
	if !ok {
		subs = make(map[<-chan Message]chan Message)
		p.topics[topic] = subs
	}
	subs[ch] = ch
	return ch
}

// Unsubscribe は購読を解除してチャネルを閉じます。最後の購読者が抜けたトピックは消えます。
func (p *SimplePubSub) Unsubscribe(topic Topic, ch <-chan Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs := p.topics[topic]
	sub, ok := subs[ch]
	if !ok {
		return
	}
	close(sub)
	delete(subs, ch)
	if len(subs) == 0 {
		delete(p.topics, topic)
	}
}

func (p *SimplePubSub) Publish(ctx context.Context, topic Topic, msg Message) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	subs := p.topics[topic]
	slog.DebugContext(ctx, "pub/sub: publishing message", "topic", topic, "bytes", len(msg.Data), "subscribers", len(subs))

	for _, ch := range subs {
		if ctx.Err() != nil {
			return
		}
		select {
		case ch <- msg:
			p.published.Add(1)
		default:
			p.dropped.Add(1)
			slog.WarnContext(ctx, "pub/sub: subscriber full, message dropped", "topic", topic, "sessionID", msg.SessionID)
		}
	}
}
