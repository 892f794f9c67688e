package natsx

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// Producer 生产端
type Producer struct{ c *Client }

func NewProducer(c *Client) *Producer { return &Producer{c: c} }

// Publish 发送到指定 subject
func (p *Producer) Publish(subject string, data []byte, hdr map[string]string) error {
	if len(hdr) == 0 {
		return p.c.nc.Publish(subject, data)
	}
	m := nats.NewMsg(subject)
	m.Data = data
	for k, v := range hdr {
		m.Header.Set(k, v)
	}
	return p.c.nc.PublishMsg(m)
}

// PublishJSON 序列化后发送
func (p *Producer) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Publish(subject, b, nil)
}
