package tgui

import kit "animefinder/internal/transport"

// Inline is a small builder for inline keyboards.
type Inline struct {
	rows [][]kit.Button
}

func NewInline() *Inline { return &Inline{} }

// Row appends a row of buttons. Empty rows are skipped.
func (i *Inline) Row(btn ...kit.Button) *Inline {
	if len(btn) == 0 {
		return i
	}
	i.rows = append(i.rows, append([]kit.Button(nil), btn...))
	return i
}

// Rows returns the keyboard rows.
func (i *Inline) Rows() [][]kit.Button {
	if i == nil {
		return nil
	}
	return i.rows
}

// Btn creates a callback button with raw callback_data.
func Btn(text, data string) kit.Button { return kit.Button{Text: text, Data: data} }

// URLBtn creates a URL button.
func URLBtn(text, url string) kit.Button { return kit.Button{Text: text, URL: url} }
