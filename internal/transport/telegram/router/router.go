// Package router dispatches owner chat commands ("/status", "/run") to
// handlers and returns their text replies.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	kit "woonbot/internal/transport"
)

// HandlerFunc handles one command and returns the reply text. An empty
// reply sends nothing.
type HandlerFunc func(ctx context.Context, req *Request) (string, error)

type Request struct {
	Message kit.Message
	Command string // without the leading slash and @botname
	Args    []string
}

type route struct {
	help string
	h    HandlerFunc
}

type Router struct {
	mu     sync.RWMutex
	routes map[string]route
	mw     []Middleware
}

var ErrUnknownCommand = errors.New("unknown command")

func New(mw ...Middleware) *Router {
	return &Router{routes: map[string]route{}, mw: mw}
}

func (r *Router) Handle(cmd, help string, h HandlerFunc) {
	r.mu.Lock()
	r.routes[strings.ToLower(cmd)] = route{help: help, h: h}
	r.mu.Unlock()
}

// Parse splits "/cmd@bot a b" into command and arguments. ok is false for
// text that is not a command.
func Parse(text string) (cmd string, args []string, ok bool) {
	f := strings.Fields(text)
	if len(f) == 0 || !strings.HasPrefix(f[0], "/") {
		return "", nil, false
	}
	cmd = strings.TrimPrefix(f[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", nil, false
	}
	return strings.ToLower(cmd), f[1:], true
}

// Dispatch runs the handler for msg through the middleware chain. Plain
// text returns ("", nil).
func (r *Router) Dispatch(ctx context.Context, msg kit.Message) (string, error) {
	cmd, args, ok := Parse(msg.Text)
	if !ok {
		return "", nil
	}
	r.mu.RLock()
	rt, found := r.routes[cmd]
	r.mu.RUnlock()
	if !found {
		return "", fmt.Errorf("%w: /%s", ErrUnknownCommand, cmd)
	}
	h := Chain(rt.h, r.mw...)
	return h(ctx, &Request{Message: msg, Command: cmd, Args: args})
}

// Help lists registered commands, sorted by name.
func (r *Router) Help() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.routes))
	for n := range r.routes {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "/%s - %s\n", n, r.routes[n].help)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Commands returns name/help pairs sorted by name.
func (r *Router) Commands() [][2]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([][2]string, 0, len(r.routes))
	for n, rt := range r.routes {
		out = append(out, [2]string{n, rt.help})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
