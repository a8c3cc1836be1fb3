package survey

import (
	"context"
	"io"

	"github.com/charmbracelet/huh"
)

// Prompt asks yes/no questions.
type Prompt struct {
	Accessible bool
	In         io.Reader
	Out        io.Writer
}

// Confirm asks title and reports the answer; the default is no.
func (p *Prompt) Confirm(ctx context.Context, title string) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	)).WithAccessible(p.Accessible)
	if p.In != nil {
		form = form.WithInput(p.In)
	}
	if p.Out != nil {
		form = form.WithOutput(p.Out)
	}

	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return ok, nil
}
