package selection

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap binds keys to actions.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Left    key.Binding
	Right   key.Binding
	Mark    key.Binding
	Channel key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

// DefaultKeyMap uses arrows or hjkl to move, space to mark, c to cycle
// channels, enter to confirm and q, esc or ctrl+c to quit.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		Mark:    key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "mark corner")),
		Channel: key.NewBinding(key.WithKeys("c", "C"), key.WithHelp("c", "channel")),
		Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
		Cancel:  key.NewBinding(key.WithKeys("q", "Q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Lookup maps a key press (anything whose String is a key name, such as a
// bubbletea KeyMsg) to an action.
func (k KeyMap) Lookup(msg fmt.Stringer) (Action, bool) {
	for _, b := range []struct {
		binding key.Binding
		action  Action
	}{
		{k.Up, MoveUp},
		{k.Down, MoveDown},
		{k.Left, MoveLeft},
		{k.Right, MoveRight},
		{k.Mark, Mark},
		{k.Channel, CycleChannel},
		{k.Confirm, Confirm},
		{k.Cancel, Cancel},
	} {
		if key.Matches(msg, b.binding) {
			return b.action, true
		}
	}
	return 0, false
}

// ShortHelp returns the bindings shown in the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Left, k.Right, k.Mark, k.Channel, k.Confirm, k.Cancel}
}

// HelpLine renders ShortHelp as "key desc · key desc".
func (k KeyMap) HelpLine() string {
	var parts []string
	for _, b := range k.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " · ")
}
