// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package configwatch applies live scheduler configuration changes
// published on a Redis Pub/Sub channel, in lieu of the kernel's
// netlink-based qdisc reconfiguration path this core replaces.
package configwatch

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"fqcodel"
)

// Subscriber is the minimal surface this package needs from a Redis
// client, so tests can swap in a logging stand-in without a live Redis.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// LoggingSubscriber is a demo subscriber that logs each SUBSCRIBE and
// then subscribes through a go-redis client with default options (which
// connects to localhost:6379). Not for production use.
type LoggingSubscriber struct{}

// Subscribe prints the channels and returns a PubSub from a
// default-options client; when no broker listens on localhost:6379 it
// delivers no messages.
func (LoggingSubscriber) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	fmt.Printf("[configwatch-demo] SUBSCRIBE %v\n", channels)
	return redis.NewClient(&redis.Options{}).Subscribe(ctx, channels...)
}

// NewGoRedisSubscriber builds a Subscriber backed by a real
// github.com/redis/go-redis/v9 client connected to addr.
func NewGoRedisSubscriber(addr string) Subscriber {
	return goRedisSubscriber{c: redis.NewClient(&redis.Options{Addr: addr})}
}

type goRedisSubscriber struct{ c *redis.Client }

func (g goRedisSubscriber) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return g.c.Subscribe(ctx, channels...)
}

// ConfigPatch is the wire format published on the watch channel: every
// field is a pointer so "unset" and "set to zero" are distinguishable,
// matching Configure's own "zero means leave unchanged" convention for
// everything except Target/Interval/MTU, which Configure never zeroes.
type ConfigPatch struct {
	Limit         *uint32 `json:"limit,omitempty"`
	MemoryLimit   *uint32 `json:"memory_limit,omitempty"`
	Quantum       *uint32 `json:"quantum,omitempty"`
	DropBatchSize *uint32 `json:"drop_batch_size,omitempty"`
	ECN           *bool   `json:"ecn,omitempty"`
}

// Apply turns a patch into a Config delta and applies it via target's
// Configure. Unset fields are left at their Config zero value, which
// Configure already treats as "leave unchanged" for every numeric
// field it accepts.
func (p ConfigPatch) Apply(target *fqcodel.Scheduler) error {
	var cfg fqcodel.Config
	if p.Limit != nil {
		cfg.Limit = *p.Limit
	}
	if p.MemoryLimit != nil {
		cfg.MemoryLimit = *p.MemoryLimit
	}
	if p.Quantum != nil {
		cfg.Quantum = *p.Quantum
	}
	if p.DropBatchSize != nil {
		cfg.DropBatchSize = *p.DropBatchSize
	}
	if p.ECN != nil {
		cfg.ECN = *p.ECN
		cfg.HasECN = true
	}
	return target.Configure(cfg)
}

// Watch subscribes to channel and applies every well-formed ConfigPatch
// it receives to target, until ctx is cancelled. Malformed messages are
// reported through onError rather than terminating the watch loop; a
// nil onError silently ignores them.
func Watch(ctx context.Context, sub Subscriber, channel string, target *fqcodel.Scheduler, onError func(error)) {
	pubsub := sub.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var patch ConfigPatch
			if err := json.Unmarshal([]byte(msg.Payload), &patch); err != nil {
				if onError != nil {
					onError(fmt.Errorf("configwatch: malformed patch: %w", err))
				}
				continue
			}
			if err := patch.Apply(target); err != nil {
				if onError != nil {
					onError(fmt.Errorf("configwatch: apply: %w", err))
				}
			}
		}
	}
}
