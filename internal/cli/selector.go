package cli

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/selection"
	"github.com/matzehuels/tilestitch/pkg/tiles"
)

// =============================================================================
// SelectorModel - Interactive region selection
// =============================================================================

// SelectorModel is the bubbletea model driving a selection.Machine.
type SelectorModel struct {
	Index   *tiles.Index
	Machine selection.Machine
	Keys    selection.KeyMap

	// Result is set when the user confirms a region.
	Result *tiles.Region

	// Cancelled is set when the user quits without confirming.
	Cancelled bool
}

// NewSelectorModel starts a selection on channel.
func NewSelectorModel(idx *tiles.Index, channel int) SelectorModel {
	return SelectorModel{
		Index:   idx,
		Machine: selection.NewMachine(idx, channel),
		Keys:    selection.DefaultKeyMap(),
	}
}

func (m SelectorModel) Init() tea.Cmd {
	return nil
}

func (m SelectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	action, ok := m.Keys.Lookup(key)
	if !ok {
		return m, nil
	}

	next, effect := m.Machine.Apply(action)
	m.Machine = next
	switch effect {
	case selection.EffectConfirm:
		if r, ok := next.Region(); ok {
			m.Result = &r
		}
		return m, tea.Quit
	case selection.EffectCancel:
		m.Cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m SelectorModel) View() string {
	if m.Result != nil || m.Cancelled {
		return ""
	}
	return selection.Render(m.Machine, m.Index, m.Keys) + "\n"
}

// runSelector runs the interactive selector on the terminal. It returns
// nil, nil when the user cancels. Raw mode and the alternate screen last
// only for the duration of the program.
func runSelector(ctx context.Context, idx *tiles.Index, channel int) (*tiles.Region, error) {
	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "interactive selection needs a terminal")
	}

	p := tea.NewProgram(NewSelectorModel(idx, channel), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "interactive selector")
	}

	m := final.(SelectorModel)
	if m.Cancelled || m.Result == nil {
		return nil, nil
	}
	return m.Result, nil
}
