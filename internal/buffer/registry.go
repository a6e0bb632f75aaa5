package buffer

import (
	"fmt"

	"github.com/jittakal/telemetrystore/internal/errors"
	"github.com/jittakal/telemetrystore/internal/validator"
	"github.com/jittakal/telemetrystore/pkg/telemetry"
)

// ChannelID is a resolved handle to a registered channel.
// The zero value and handles obtained from another manager are rejected.
type ChannelID struct {
	index int
	reg   *registry
}

// Name returns the channel name, or "" for an invalid handle.
func (id ChannelID) Name() string {
	if id.reg == nil || id.index < 0 || id.index >= len(id.reg.channels) {
		return ""
	}
	return id.reg.channels[id.index].info.Name
}

type channel struct {
	info telemetry.ChannelInfo
	buf  *ChannelBuffer
}

// registry maps channel names to their buffers. The channel set and its
// declaration order are fixed at construction.
type registry struct {
	channels []channel
	index    map[string]int
}

func newRegistry(infos []telemetry.ChannelInfo, window int, overflow OverflowPolicy) (*registry, error) {
	if err := validator.ValidateChannels(infos); err != nil {
		return nil, err
	}

	r := &registry{
		channels: make([]channel, len(infos)),
		index:    make(map[string]int, len(infos)),
	}
	for i, info := range infos {
		r.channels[i] = channel{info: info, buf: New(info, window, overflow)}
		r.index[info.Name] = i
	}
	return r, nil
}

func (r *registry) lookup(name string) (ChannelID, error) {
	i, ok := r.index[name]
	if !ok {
		return ChannelID{}, fmt.Errorf("%w: %q", errors.ErrUnknownChannel, name)
	}
	return ChannelID{index: i, reg: r}, nil
}

func (r *registry) byName(name string) (*channel, error) {
	id, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return &r.channels[id.index], nil
}

func (r *registry) byID(id ChannelID) (*channel, error) {
	if id.reg != r || id.index < 0 || id.index >= len(r.channels) {
		return nil, fmt.Errorf("%w: invalid channel handle", errors.ErrUnknownChannel)
	}
	return &r.channels[id.index], nil
}

func (r *registry) infos() []telemetry.ChannelInfo {
	out := make([]telemetry.ChannelInfo, len(r.channels))
	for i, ch := range r.channels {
		out[i] = ch.info
	}
	return out
}
