package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/tilestitch/pkg/selection"
	"github.com/matzehuels/tilestitch/pkg/tiles"
)

func selectorIndex(rows, cols int) *tiles.Index {
	var infos []tiles.TileInfo
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			infos = append(infos, tiles.TileInfo{Y: y, X: x, ZSlices: 2, Height: 10, Width: 10})
		}
	}
	return tiles.NewIndex("tiles", infos, tiles.Limits{})
}

var (
	keySpace = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyRight = tea.KeyMsg{Type: tea.KeyRight}
	keyQuit  = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
)

// send feeds msgs through the model and returns the final model and the
// last command.
func send(m SelectorModel, msgs ...tea.Msg) (SelectorModel, tea.Cmd) {
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(SelectorModel)
	}
	return m, cmd
}

func TestSelectorConfirm(t *testing.T) {
	m := NewSelectorModel(selectorIndex(4, 4), 0)

	m, cmd := send(m, keySpace, keyDown, keyRight, keySpace, keyEnter)
	require.NotNil(t, m.Result)
	require.Equal(t, tiles.Region{YStart: 0, YEnd: 2, XStart: 0, XEnd: 2}, *m.Result)
	require.False(t, m.Cancelled)
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
	require.Empty(t, m.View())
}

func TestSelectorConfirmWithoutSelection(t *testing.T) {
	m := NewSelectorModel(selectorIndex(4, 4), 0)

	m, cmd := send(m, keyEnter)
	require.Nil(t, cmd)
	require.Nil(t, m.Result)
	require.Equal(t, selection.HintNoSelection, m.Machine.Hint())
	require.True(t, strings.Contains(m.View(), selection.HintNoSelection))
}

func TestSelectorCancel(t *testing.T) {
	for _, msg := range []tea.Msg{keyQuit, tea.KeyMsg{Type: tea.KeyEsc}, tea.KeyMsg{Type: tea.KeyCtrlC}} {
		m, cmd := send(NewSelectorModel(selectorIndex(2, 2), 0), keySpace, msg)
		require.True(t, m.Cancelled)
		require.Nil(t, m.Result)
		require.NotNil(t, cmd)
	}
}

func TestSelectorIgnoresOtherMessages(t *testing.T) {
	m := NewSelectorModel(selectorIndex(2, 2), 0)
	before := m.Machine

	m, cmd := send(m, tea.WindowSizeMsg{Width: 80, Height: 24}, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'z'}})
	require.Nil(t, cmd)
	require.Equal(t, before.Cursor(), m.Machine.Cursor())
	require.Equal(t, before.State(), m.Machine.State())
}

func TestSelectorView(t *testing.T) {
	m := NewSelectorModel(selectorIndex(2, 3), 0)
	view := m.View()
	require.Contains(t, view, selection.Title)
	require.Contains(t, view, "Cursor: y00_x00")
}
