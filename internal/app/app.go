// Package app contains the top-level orchestration for the road, lane and
// rtc roles: building a stack from configuration, then driving it from a
// service loop fed by line input.
package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/1ureka/raet/internal/body"
	"github.com/1ureka/raet/internal/stack"
	"github.com/1ureka/raet/internal/transport"
	"github.com/1ureka/raet/internal/util"
)

// Outbound is a message typed by the user.
type Outbound struct {
	// To names the destination; empty means the first remote.
	To   string
	Body body.Body
}

// ParseLine turns an input line into a message. "@name rest" addresses
// name. rest is taken as a JSON object when it is one, otherwise it is sent
// as {"content": rest}.
func ParseLine(line string) (Outbound, error) {
	line = strings.TrimSpace(line)
	var out Outbound
	if strings.HasPrefix(line, "@") {
		to, rest, _ := strings.Cut(line[1:], " ")
		if to == "" {
			return out, errors.New("empty destination after @")
		}
		out.To, line = to, strings.TrimSpace(rest)
	}
	if line == "" {
		return out, errors.New("empty message")
	}
	if strings.HasPrefix(line, "{") {
		var b body.Body
		if err := json.Unmarshal([]byte(line), &b); err != nil {
			return out, fmt.Errorf("invalid JSON body: %w", err)
		}
		out.Body = b
		return out, nil
	}
	out.Body = body.Body{"content": line}
	return out, nil
}

// Lines feeds the lines of r into the returned channel until r ends or ctx
// is cancelled.
func Lines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case ch <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Loop drives one stack. Every callback runs on the loop goroutine, so the
// stack is never touched concurrently.
type Loop struct {
	Name string
	Tick time.Duration
	// Service runs one full service cycle of the stack.
	Service func() error
	// Drain empties the stack's received message queue.
	Drain func() []stack.RxMsg
	// Send queues a message on the stack.
	Send func(Outbound) error

	Input     <-chan string
	OnMessage func(stack.RxMsg)
	// Wake, when set, triggers a cycle before the next tick, e.g. once a
	// congested transport drains.
	Wake <-chan struct{}
}

// Run services the stack every Tick and on every input line until ctx is
// cancelled or the transport closes.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Tick)
	defer ticker.Stop()

	input := l.Input
	for {
		if err := l.Service(); err != nil {
			if errors.Is(err, transport.ErrClosed) {
				util.LogInfo("[%s] transport closed", l.Name)
				return nil
			}
			return err
		}
		for _, msg := range l.Drain() {
			if l.OnMessage != nil {
				l.OnMessage(msg)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-input:
			if !ok {
				input = nil
				continue
			}
			out, err := ParseLine(line)
			if err != nil {
				util.LogWarning("[%s] %v", l.Name, err)
				continue
			}
			if err := l.Send(out); err != nil {
				util.LogWarning("[%s] %v", l.Name, err)
			}
		case <-l.Wake:
		case <-ticker.C:
		}
	}
}

// PrintMessage logs a received message.
func PrintMessage(name string) func(stack.RxMsg) {
	return func(msg stack.RxMsg) {
		data, err := json.Marshal(msg.Body)
		if err != nil {
			data = []byte(fmt.Sprint(msg.Body))
		}
		util.LogSuccess("[%s] %s (uid %d): %s", name, msg.Name, msg.UID, data)
	}
}
