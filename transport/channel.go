// Package transport implements the shared-directory channel both endpoints rendezvous on.
//
// The channel is a directory holding at most four artifacts. None exist while the
// channel is idle; presence means "message available" or "endpoint busy":
//
//	crossplay/
//	├── messages_java.json    engine → agent reply         (agent's inbound)
//	├── messages_other.json   agent → engine request       (agent's outbound)
//	├── lock_java.txt         engine holds the channel
//	└── lock_other.txt        agent holds the channel
//
// Each endpoint sees the same four files through a View: its own inbound, outbound,
// self-busy and peer-busy artifacts. Messages are written to a uniquely named temp
// file and renamed into place, so a poller never observes a half-written message.
package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"crossplay/codec"
	"crossplay/message"
	"crossplay/protocol"

	"github.com/google/uuid"
)

// Layout names the channel directory and its artifacts.
type Layout struct {
	Dir           string
	EngineMessage string // written by the engine, read by the agent
	AgentMessage  string // written by the agent, read by the engine
	EngineLock    string
	AgentLock     string
}

// DefaultLayout matches the file names the engine uses.
func DefaultLayout(dir string) Layout {
	if dir == "" {
		dir = "crossplay"
	}
	return Layout{
		Dir:           dir,
		EngineMessage: "messages_java.json",
		AgentMessage:  "messages_other.json",
		EngineLock:    "lock_java.txt",
		AgentLock:     "lock_other.txt",
	}
}

// Validate rejects empty, duplicated, or path-escaping artifact names.
func (l Layout) Validate() error {
	if strings.TrimSpace(l.Dir) == "" {
		return errors.New("transport: layout missing dir")
	}
	seen := map[string]bool{}
	for _, name := range []string{l.EngineMessage, l.AgentMessage, l.EngineLock, l.AgentLock} {
		name = strings.TrimSpace(name)
		if name == "" {
			return errors.New("transport: layout has an empty artifact name")
		}
		if name != filepath.Base(name) || name == "." || name == ".." {
			return fmt.Errorf("transport: artifact %q must be a bare file name", name)
		}
		if seen[name] {
			return fmt.Errorf("transport: artifact %q used twice", name)
		}
		seen[name] = true
	}
	return nil
}

// Endpoint identifies which side of the channel a View belongs to.
type Endpoint int

const (
	Agent  Endpoint = iota // issues calls
	Engine                 // executes calls
)

func (e Endpoint) String() string {
	if e == Engine {
		return "engine"
	}
	return "agent"
}

// Artifact is one of the four channel files.
type Artifact string

// View is the channel from one endpoint's perspective.
type View struct {
	Inbound  Artifact // peer's message for us
	Outbound Artifact // our message for the peer
	Self     Artifact // our busy sentinel
	Peer     Artifact // peer's busy sentinel
}

// Channel performs the primitive operations on the shared directory.
type Channel struct {
	layout Layout
	codec  codec.Codec
}

// NewChannel binds a layout to a codec. A nil codec means JSON.
func NewChannel(layout Layout, cdc codec.Codec) (*Channel, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if cdc == nil {
		cdc = codec.GetCodec(codec.CodecTypeJSON)
	}
	return &Channel{layout: layout, codec: cdc}, nil
}

func (c *Channel) Layout() Layout {
	return c.layout
}

func (c *Channel) Codec() codec.Codec {
	return c.codec
}

// View returns the channel as seen by endpoint e.
func (c *Channel) View(e Endpoint) View {
	engine := View{
		Inbound:  Artifact(c.layout.AgentMessage),
		Outbound: Artifact(c.layout.EngineMessage),
		Self:     Artifact(c.layout.EngineLock),
		Peer:     Artifact(c.layout.AgentLock),
	}
	if e == Engine {
		return engine
	}
	return View{
		Inbound:  engine.Outbound,
		Outbound: engine.Inbound,
		Self:     engine.Peer,
		Peer:     engine.Self,
	}
}

// Path returns the absolute-or-relative file path of an artifact.
func (c *Channel) Path(a Artifact) string {
	return filepath.Join(c.layout.Dir, string(a))
}

// Exists reports whether an artifact is present. Errors other than
// "not found" are returned so a broken directory is not mistaken for idle.
func (c *Channel) Exists(a Artifact) (bool, error) {
	_, err := os.Stat(c.Path(a))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Touch creates a zero-length sentinel, succeeding if it already exists.
func (c *Channel) Touch(a Artifact) error {
	f, err := os.OpenFile(c.Path(a), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// ErrClaimed is returned by Claim when the sentinel already exists.
var ErrClaimed = errors.New("transport: artifact already claimed")

// Claim creates a sentinel atomically, failing with ErrClaimed if it exists.
func (c *Channel) Claim(a Artifact) error {
	f, err := os.OpenFile(c.Path(a), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrClaimed, a)
		}
		return err
	}
	return f.Close()
}

// Remove deletes an artifact; a missing artifact is not an error.
func (c *Channel) Remove(a Artifact) error {
	err := os.Remove(c.Path(a))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// WriteObject encodes obj and materializes it as artifact a in one rename.
func (c *Channel) WriteObject(a Artifact, obj message.Object) error {
	data, err := c.codec.Encode(message.Encode(obj))
	if err != nil {
		return fmt.Errorf("transport: encode %s: %w", a, err)
	}
	tmp := filepath.Join(c.layout.Dir, tempPrefix+string(a)+"."+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.Path(a)); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ReadObject reads and decodes artifact a without removing it. Bytes that do
// not parse as a record are a wrong-shape protocol error; filesystem errors are
// returned as is.
func (c *Channel) ReadObject(a Artifact) (message.Object, error) {
	data, err := os.ReadFile(c.Path(a))
	if err != nil {
		return nil, err
	}
	tree, err := c.codec.Decode(data)
	if err != nil {
		return nil, protocol.WrongShape("%s: %v", a, err)
	}
	return message.Decode(tree)
}

// Consume reads artifact a and deletes it. The artifact is deleted even when
// decoding fails, so a bad message is never read twice.
func (c *Channel) Consume(a Artifact) (message.Object, error) {
	obj, readErr := c.ReadObject(a)
	if errors.Is(readErr, fs.ErrNotExist) {
		return nil, readErr
	}
	if err := c.Remove(a); err != nil {
		return nil, err
	}
	return obj, readErr
}

const tempPrefix = ".tmp-"

// Reset creates the channel directory if needed and removes any artifacts
// left over from an earlier run.
func (c *Channel) Reset() error {
	if err := os.MkdirAll(c.layout.Dir, 0o755); err != nil {
		return fmt.Errorf("transport: create %s: %w", c.layout.Dir, err)
	}
	return c.removeArtifacts()
}

// Clear removes all artifacts and the directory itself. A directory holding
// unrelated files is left in place.
func (c *Channel) Clear() error {
	if err := c.removeArtifacts(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	err := os.Remove(c.layout.Dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) && !isNotEmpty(err) {
		return fmt.Errorf("transport: remove %s: %w", c.layout.Dir, err)
	}
	return nil
}

// Idle reports whether none of the four artifacts exist.
func (c *Channel) Idle() (bool, error) {
	for _, a := range c.artifacts() {
		ok, err := c.Exists(a)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}

func (c *Channel) artifacts() []Artifact {
	return []Artifact{
		Artifact(c.layout.EngineMessage),
		Artifact(c.layout.AgentMessage),
		Artifact(c.layout.EngineLock),
		Artifact(c.layout.AgentLock),
	}
}

func (c *Channel) removeArtifacts() error {
	for _, a := range c.artifacts() {
		if err := c.Remove(a); err != nil {
			return fmt.Errorf("transport: remove %s: %w", a, err)
		}
	}
	entries, err := os.ReadDir(c.layout.Dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			os.Remove(filepath.Join(c.layout.Dir, e.Name()))
		}
	}
	return nil
}

func isNotEmpty(err error) bool {
	var pe *fs.PathError
	if !errors.As(err, &pe) {
		return false
	}
	return errors.Is(pe.Err, fs.ErrExist) || strings.Contains(pe.Err.Error(), "not empty")
}
