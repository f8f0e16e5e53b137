// Package redistest answers the Redis commands the service issues from
// process memory. NewClient returns a real go-redis client whose commands are
// intercepted by a hook before any connection is dialed.
package redistest

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScriptFunc emulates one Lua script against the Server.
type ScriptFunc func(keys []string, args []interface{}) (interface{}, error)

type entry struct {
	value   string
	expires time.Time
}

// Server holds keys with optional expiry.
type Server struct {
	mu      sync.Mutex
	values  map[string]entry
	scripts map[string]ScriptFunc
	now     func() time.Time
}

// NewClient returns a client backed by a fresh Server. Close the client when done.
func NewClient() (*redis.Client, *Server) {
	srv := &Server{
		values:  make(map[string]entry),
		scripts: make(map[string]ScriptFunc),
		now:     time.Now,
	}
	client := redis.NewClient(&redis.Options{Addr: "redistest:6379"})
	client.AddHook(srv)
	return client, srv
}

// Advance moves the server clock forward and freezes it there. Advance(0)
// freezes the clock at the current time.
func (s *Server) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := s.now()
	s.now = func() time.Time { return base.Add(d) }
}

// HandleScript registers fn for EVALSHA calls of script.
func (s *Server) HandleScript(script *redis.Script, fn ScriptFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[script.Hash()] = fn
}

// Keys lists the live keys.
func (s *Server) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.values {
		if _, ok := s.liveLocked(k); ok {
			out = append(out, k)
		}
	}
	return out
}

// TTL reports the remaining lifetime of key: -1 without expiry, -2 when missing.
func (s *Server) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttlLocked(key)
}

// SetValue stores value under key. With nx it only writes a missing key.
func (s *Server) SetValue(key, value string, ttl time.Duration, nx bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(key, value, ttl, nx)
}

// Incr increments an integer key, keeping its expiry.
func (s *Server) Incr(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, _ := s.liveLocked(key)
	n := int64(0)
	if e.value != "" {
		var err error
		if n, err = strconv.ParseInt(e.value, 10, 64); err != nil {
			return 0, fmt.Errorf("ERR value is not an integer")
		}
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	s.values[key] = e
	return n, nil
}

func (s *Server) liveLocked(key string) (entry, bool) {
	e, ok := s.values[key]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.values, key)
		return entry{}, false
	}
	return e, true
}

func (s *Server) ttlLocked(key string) time.Duration {
	e, ok := s.liveLocked(key)
	switch {
	case !ok:
		return -2
	case e.expires.IsZero():
		return -1
	}
	return e.expires.Sub(s.now())
}

func (s *Server) setLocked(key, value string, ttl time.Duration, nx bool) bool {
	if _, exists := s.liveLocked(key); exists && nx {
		return false
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.values[key] = e
	return true
}

func (s *Server) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, fmt.Errorf("redistest: dial %s is not supported", addr)
	}
}

func (s *Server) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			if err := s.process(cmd); err != nil && err != redis.Nil {
				return err
			}
		}
		return nil
	}
}

func (s *Server) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return s.process(cmd)
	}
}

func (s *Server) process(cmd redis.Cmder) error {
	args := cmd.Args()
	switch cmd.Name() {
	case "set":
		return s.set(cmd, args)
	case "get":
		s.mu.Lock()
		e, ok := s.liveLocked(str(args[1]))
		s.mu.Unlock()
		if !ok {
			cmd.SetErr(redis.Nil)
			return redis.Nil
		}
		cmd.(*redis.StringCmd).SetVal(e.value)
		return nil
	case "del":
		s.mu.Lock()
		var n int64
		for _, k := range args[1:] {
			if _, ok := s.liveLocked(str(k)); ok {
				delete(s.values, str(k))
				n++
			}
		}
		s.mu.Unlock()
		cmd.(*redis.IntCmd).SetVal(n)
		return nil
	case "evalsha":
		return s.evalSha(cmd, args)
	}
	err := fmt.Errorf("redistest: unsupported command %q", cmd.Name())
	cmd.SetErr(err)
	return err
}

func (s *Server) set(cmd redis.Cmder, args []interface{}) error {
	var (
		ttl time.Duration
		nx  bool
	)
	for i := 3; i < len(args); i++ {
		switch strings.ToLower(str(args[i])) {
		case "ex":
			i++
			ttl = time.Duration(toInt(args[i])) * time.Second
		case "px":
			i++
			ttl = time.Duration(toInt(args[i])) * time.Millisecond
		case "nx":
			nx = true
		}
	}
	if !s.SetValue(str(args[1]), str(args[2]), ttl, nx) {
		cmd.SetErr(redis.Nil)
		return redis.Nil
	}
	cmd.(*redis.StatusCmd).SetVal("OK")
	return nil
}

func (s *Server) evalSha(cmd redis.Cmder, args []interface{}) error {
	s.mu.Lock()
	fn, ok := s.scripts[str(args[1])]
	s.mu.Unlock()
	if !ok {
		err := fmt.Errorf("NOSCRIPT no script registered for %s", str(args[1]))
		cmd.SetErr(err)
		return err
	}
	numKeys := int(toInt(args[2]))
	keys := make([]string, 0, numKeys)
	for _, k := range args[3 : 3+numKeys] {
		keys = append(keys, str(k))
	}
	val, err := fn(keys, args[3+numKeys:])
	if err != nil {
		cmd.SetErr(err)
		return err
	}
	cmd.(*redis.Cmd).SetVal(val)
	return nil
}

func str(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	}
	return fmt.Sprint(v)
}

func toInt(v interface{}) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int64:
		return t
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	n, _ := strconv.ParseInt(fmt.Sprint(v), 10, 64)
	return n
}
