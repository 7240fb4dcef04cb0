// Copyright 2020-2021 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package log provides a small zerolog-style structured logger for the
// streamer core. Unlike the NVR this was adapted from, there is no
// on-disk log database: the core keeps no persistent state beyond the
// container and audio files it emits, so log records only ever live as
// long as a subscriber is listening.
package log

// API inspired by zerolog https://github.com/rs/zerolog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Level defines log level.
type Level uint8

// Logging constants.
const (
	LevelError Level = 16
	LevelWarn  Level = 24
	LevelInfo  Level = 32
	LevelDebug Level = 48
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARNING"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// UnixMillisecond is a timestamp in milliseconds since epoch.
type UnixMillisecond uint64

// Event is an in-flight log entry, built up by chained setters.
type Event struct {
	level Level
	time  UnixMillisecond
	src   string
	shard string

	logger *Logger
}

// Log is a finished, immutable log entry.
type Log struct {
	Level Level
	Time  UnixMillisecond
	Msg   string
	Src   string // Source component: "processor", "writer", "audio", ...
	Shard string // Container shard identifier, if applicable.
}

// Src sets the event's source component.
func (e *Event) Src(source string) *Event {
	e.src = source
	return e
}

// Shard sets the event's container shard identifier.
func (e *Event) Shard(shard string) *Event {
	e.shard = shard
	return e
}

// Msg sends the event with msg as the message field.
func (e *Event) Msg(msg string) {
	if e.logger == nil {
		return
	}
	e.logger.feed <- Log{
		Time:  e.time,
		Level: e.level,
		Msg:   msg,
		Src:   e.src,
		Shard: e.shard,
	}
}

// Msgf sends the event with a formatted msg.
func (e *Event) Msgf(format string, v ...interface{}) {
	e.Msg(fmt.Sprintf(format, v...))
}

type logFeed chan Log

// Logger fans a stream of Log entries out to any number of subscribers.
type Logger struct {
	feed  logFeed
	sub   chan logFeed
	unsub chan logFeed

	wg *sync.WaitGroup
}

// NewLogger returns a Logger. Call Start to begin fanning out events.
func NewLogger(wg *sync.WaitGroup) *Logger {
	return &Logger{
		feed:  make(logFeed),
		sub:   make(chan logFeed),
		unsub: make(chan logFeed),
		wg:    wg,
	}
}

// NewMockLogger returns a Logger suitable for tests. It is not
// started: Msg blocks until Start has been called, after which entries
// are dropped unless something subscribes.
func NewMockLogger() *Logger {
	return NewLogger(&sync.WaitGroup{})
}

// Start begins fanning out log events until ctx is canceled.
func (l *Logger) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		subs := map[logFeed]struct{}{}
		for {
			select {
			case <-ctx.Done():
				return
			case ch := <-l.sub:
				subs[ch] = struct{}{}
			case ch := <-l.unsub:
				close(ch)
				delete(subs, ch)
			case msg := <-l.feed:
				for ch := range subs {
					ch <- msg
				}
			}
		}
	}()
}

// CancelFunc cancels a log feed subscription.
type CancelFunc func()

// Subscribe returns a channel of Log entries and a CancelFunc.
func (l *Logger) Subscribe() (<-chan Log, CancelFunc) {
	feed := make(logFeed)
	l.sub <- feed

	cancel := func() {
		l.unSubscribe(feed)
	}
	return feed, cancel
}

func (l *Logger) unSubscribe(feed logFeed) {
	for {
		select {
		case l.unsub <- feed:
			return
		case <-feed:
		}
	}
}

// LogToStdout prints every log entry to stdout until ctx is canceled.
func (l *Logger) LogToStdout(ctx context.Context) {
	feed, cancel := l.Subscribe()
	defer cancel()
	for {
		select {
		case entry := <-feed:
			fmt.Println(formatLog(entry))
		case <-ctx.Done():
			return
		}
	}
}

func formatLog(e Log) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", e.Level)
	if e.Shard != "" {
		fmt.Fprintf(&b, "%s: ", e.Shard)
	}
	if e.Src != "" {
		fmt.Fprintf(&b, "%s: ", e.Src)
	}
	b.WriteString(e.Msg)
	return b.String()
}

// Error starts a new error-level event. Call Msg/Msgf to send it.
func (l *Logger) Error() *Event {
	return l.newEvent(LevelError)
}

// Warn starts a new warning-level event. Call Msg/Msgf to send it.
func (l *Logger) Warn() *Event {
	return l.newEvent(LevelWarn)
}

// Info starts a new info-level event. Call Msg/Msgf to send it.
func (l *Logger) Info() *Event {
	return l.newEvent(LevelInfo)
}

// Debug starts a new debug-level event. Call Msg/Msgf to send it.
func (l *Logger) Debug() *Event {
	return l.newEvent(LevelDebug)
}

func (l *Logger) newEvent(level Level) *Event {
	return &Event{
		level:  level,
		time:   UnixMillisecond(time.Now().UnixMilli()),
		logger: l,
	}
}
