package player

import "sync"

// Command types sent to renderers
const (
	CommandLoad      = "load"
	CommandPlay      = "play"
	CommandPause     = "pause"
	CommandSeek      = "seek"
	CommandSetVolume = "volume"
)

// Command is an instruction for the browser audio element
type Command struct {
	Type     string  `json:"type"`
	Src      string  `json:"src,omitempty"`
	Position float64 `json:"position,omitempty"`
	Volume   float64 `json:"volume,omitempty"`
}

// RemoteMedia implements Media by broadcasting commands to connected
// renderers. Renderers report outcomes asynchronously through the
// controller's event methods, so Load and Play never fail here.
type RemoteMedia struct {
	commands broadcaster[Command]
	last     lastCommands
}

// NewRemoteMedia creates a media element with no renderers attached
func NewRemoteMedia() *RemoteMedia {
	return &RemoteMedia{}
}

func (m *RemoteMedia) Load(src string) error {
	m.send(Command{Type: CommandLoad, Src: src})
	return nil
}

func (m *RemoteMedia) Play() error {
	m.send(Command{Type: CommandPlay})
	return nil
}

func (m *RemoteMedia) Pause() {
	m.send(Command{Type: CommandPause})
}

func (m *RemoteMedia) Seek(seconds float64) {
	m.send(Command{Type: CommandSeek, Position: seconds})
}

func (m *RemoteMedia) SetVolume(volume float64) {
	m.send(Command{Type: CommandSetVolume, Volume: volume})
}

// Subscribe attaches a renderer
func (m *RemoteMedia) Subscribe() <-chan Command {
	return m.commands.Subscribe()
}

// Unsubscribe detaches a renderer
func (m *RemoteMedia) Unsubscribe(ch <-chan Command) {
	m.commands.Unsubscribe(ch)
}

// Renderers returns the number of attached renderers
func (m *RemoteMedia) Renderers() int {
	return m.commands.Count()
}

// Replay returns the commands a newly attached renderer needs to reach the
// current source and volume.
func (m *RemoteMedia) Replay() []Command {
	return m.last.get()
}

func (m *RemoteMedia) send(cmd Command) {
	m.last.record(cmd)
	m.commands.publish(cmd)
}

// lastCommands remembers the latest source and volume
type lastCommands struct {
	mutex  sync.Mutex
	load   *Command
	volume *Command
}

func (l *lastCommands) record(cmd Command) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	switch cmd.Type {
	case CommandLoad:
		l.load = &cmd
	case CommandSetVolume:
		l.volume = &cmd
	}
}

func (l *lastCommands) get() []Command {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	var cmds []Command
	if l.volume != nil {
		cmds = append(cmds, *l.volume)
	}
	if l.load != nil {
		cmds = append(cmds, *l.load)
	}
	return cmds
}
