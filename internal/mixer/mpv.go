package mixer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/shared"
)

const (
	socketCheckRetries  = 20
	socketCheckInterval = 100 * time.Millisecond
	commandTimeout      = 2 * time.Second
	quitTimeout         = 500 * time.Millisecond

	observeTimePos  = 1
	observeDuration = 2
	observeEOF      = 3
)

var errChannelClosed = errors.New("mpv connection closed")

type mpvCommand struct {
	Command   []any `json:"command"`
	RequestID int   `json:"request_id,omitempty"`
}

// mpvMessage is either a command reply (RequestID set) or an event.
type mpvMessage struct {
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
	RequestID int             `json:"request_id"`
	Event     string          `json:"event"`
	Name      string          `json:"name"`
	Reason    string          `json:"reason"`
	FileError string          `json:"file_error"`
}

// MpvOpts configures mpv-backed channels.
type MpvOpts struct {
	Path      string // mpv binary, defaults to "mpv"
	SocketDir string // defaults to os.TempDir()
	Logger    *log.Logger
}

// NewMpvFactory returns a [ChannelFactory] that runs one idle mpv process per channel,
// driven over its JSON IPC socket.
func NewMpvFactory(opts MpvOpts) ChannelFactory {
	if opts.Path == "" {
		opts.Path = "mpv"
	}
	if opts.SocketDir == "" {
		opts.SocketDir = os.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return func(id models.StemID, notify func(ChannelEvent)) (Channel, error) {
		return newMpvChannel(id, opts, notify), nil
	}
}

// MpvChannel plays one source in its own mpv process.
type MpvChannel struct {
	id         models.StemID
	opts       MpvOpts
	notify     func(ChannelEvent)
	socketPath string
	logger     *log.Logger
	spawn      func(ctx context.Context, loop bool) error

	cmd  *exec.Cmd
	conn net.Conn
	done chan struct{}

	mu      sync.Mutex
	enc     *json.Encoder
	nextID  int
	pending map[int]chan mpvMessage
}

func newMpvChannel(id models.StemID, opts MpvOpts, notify func(ChannelEvent)) *MpvChannel {
	if notify == nil {
		notify = func(ChannelEvent) {}
	}
	name := fmt.Sprintf("stemdeck-%s-%s.sock", shared.GenerateID()[:8], id)
	c := &MpvChannel{
		id:         id,
		opts:       opts,
		notify:     notify,
		socketPath: filepath.Join(opts.SocketDir, name),
		logger:     shared.WithLogger(opts.Logger, "component", "mpv", "stem", id),
		nextID:     observeEOF,
		pending:    map[int]chan mpvMessage{},
	}
	c.spawn = c.startProcess
	return c
}

// Load starts mpv paused and loads url. Stems pass loop so shorter files repeat under main.
func (c *MpvChannel) Load(ctx context.Context, url string, loop bool) error {
	if err := c.spawn(ctx, loop); err != nil {
		return err
	}
	if err := c.connect(ctx); err != nil {
		c.Close()
		return err
	}

	if _, err := c.command("observe_property", observeTimePos, "time-pos"); err != nil {
		return fmt.Errorf("observe time-pos: %w", err)
	}
	if _, err := c.command("observe_property", observeDuration, "duration"); err != nil {
		return fmt.Errorf("observe duration: %w", err)
	}
	if _, err := c.command("observe_property", observeEOF, "eof-reached"); err != nil {
		return fmt.Errorf("observe eof-reached: %w", err)
	}
	if _, err := c.command("loadfile", url, "replace"); err != nil {
		return fmt.Errorf("loadfile: %w", err)
	}
	return nil
}

func (c *MpvChannel) startProcess(ctx context.Context, loop bool) error {
	os.Remove(c.socketPath)

	c.cmd = exec.Command(c.opts.Path, mpvArgs(c.socketPath, loop)...)
	if err := c.cmd.Start(); err != nil {
		c.cmd = nil
		return fmt.Errorf("could not start mpv process: %w", err)
	}
	c.logger.Debug("started mpv", "pid", c.cmd.Process.Pid, "socket", c.socketPath)

	for range socketCheckRetries {
		if _, err := os.Stat(c.socketPath); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			c.kill()
			return ctx.Err()
		case <-time.After(socketCheckInterval):
		}
	}

	c.kill()
	return fmt.Errorf("%w: mpv socket did not appear at %s", shared.ErrTimeout, c.socketPath)
}

// mpvArgs builds the command line for one channel. A non-looping file stays open at
// EOF so it can be sought and played again.
func mpvArgs(socketPath string, loop bool) []string {
	args := []string{
		"--idle",
		"--pause",
		"--input-ipc-server=" + socketPath,
		"--no-video",
		"--no-config",
		"--no-terminal",
	}
	if loop {
		return append(args, "--loop-file=inf")
	}
	return append(args, "--loop-file=no", "--keep-open=yes")
}

func (c *MpvChannel) connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("could not connect to mpv socket: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.enc = json.NewEncoder(conn)
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(conn, c.done)
	return nil
}

func (c *MpvChannel) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg mpvMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			c.logger.Warn("could not parse line from mpv", "line", scanner.Text(), "error", err)
			continue
		}

		if msg.Event != "" {
			c.handleEvent(msg)
			continue
		}

		c.mu.Lock()
		reply, ok := c.pending[msg.RequestID]
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
		if ok {
			reply <- msg
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("mpv socket read ended", "error", err)
	}
}

func (c *MpvChannel) handleEvent(msg mpvMessage) {
	switch msg.Event {
	case "property-change":
		if msg.Name == "eof-reached" {
			var eof bool
			if err := json.Unmarshal(msg.Data, &eof); err == nil && eof {
				c.notify(ChannelEvent{Stem: c.id, Kind: Ended})
			}
			return
		}
		var v *float64
		if err := json.Unmarshal(msg.Data, &v); err != nil || v == nil {
			return
		}
		switch msg.Name {
		case "time-pos":
			c.notify(ChannelEvent{Stem: c.id, Kind: TimeUpdate, Value: *v})
		case "duration":
			c.notify(ChannelEvent{Stem: c.id, Kind: DurationKnown, Value: *v})
		}
	case "end-file":
		switch msg.Reason {
		case "eof":
			c.notify(ChannelEvent{Stem: c.id, Kind: Ended})
		case "error":
			cause := msg.FileError
			if cause == "" {
				cause = "playback error"
			}
			c.notify(ChannelEvent{Stem: c.id, Kind: Error, Err: errors.New(cause)})
		}
	}
}

// command sends one IPC command and waits for its reply.
func (c *MpvChannel) command(args ...any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.enc == nil {
		c.mu.Unlock()
		return nil, shared.ErrPlayerNotStarted
	}
	c.nextID++
	id := c.nextID
	reply := make(chan mpvMessage, 1)
	c.pending[id] = reply
	err := c.enc.Encode(mpvCommand{Command: args, RequestID: id})
	done := c.done
	c.mu.Unlock()

	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("error sending mpv command: %w", err)
	}

	select {
	case msg := <-reply:
		if msg.Error != "success" {
			return nil, fmt.Errorf("mpv %v: %s", args[0], msg.Error)
		}
		return msg.Data, nil
	case <-done:
		c.forget(id)
		return nil, errChannelClosed
	case <-time.After(commandTimeout):
		c.forget(id)
		return nil, fmt.Errorf("%w: mpv %v", shared.ErrTimeout, args[0])
	}
}

func (c *MpvChannel) forget(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *MpvChannel) Play() error {
	_, err := c.command("set_property", "pause", false)
	return err
}

func (c *MpvChannel) Pause() error {
	_, err := c.command("set_property", "pause", true)
	return err
}

func (c *MpvChannel) Position() (float64, error) {
	data, err := c.command("get_property", "time-pos")
	if err != nil {
		return 0, err
	}
	var pos float64
	if err := json.Unmarshal(data, &pos); err != nil {
		return 0, fmt.Errorf("decode time-pos: %w", err)
	}
	return pos, nil
}

func (c *MpvChannel) Seek(seconds float64) error {
	_, err := c.command("seek", seconds, "absolute+exact")
	return err
}

func (c *MpvChannel) SetVolume(level float64) error {
	_, err := c.command("set_property", "volume", level*100)
	return err
}

// Close asks mpv to quit, then kills it if it lingers.
func (c *MpvChannel) Close() error {
	c.mu.Lock()
	conn := c.conn
	enc := c.enc
	done := c.done
	c.conn, c.enc = nil, nil
	c.mu.Unlock()

	if conn != nil {
		enc.Encode(mpvCommand{Command: []any{"quit"}})
		select {
		case <-done:
		case <-time.After(quitTimeout):
		}
		conn.Close()
	}
	c.kill()
	os.Remove(c.socketPath)
	return nil
}

func (c *MpvChannel) kill() {
	if c.cmd == nil || c.cmd.Process == nil {
		return
	}
	if c.cmd.ProcessState == nil {
		if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			c.logger.Error("error terminating mpv process", "error", err)
		}
		c.cmd.Wait()
	}
	c.cmd = nil
}
