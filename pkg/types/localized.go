package types

// LocalizedText carries a message in English and Arabic.
type LocalizedText struct {
	EN string `json:"en"`
	AR string `json:"ar"`
}

// NewLocalizedText builds a LocalizedText, falling back to English when no
// Arabic text is provided.
func NewLocalizedText(en, ar string) LocalizedText {
	if ar == "" {
		ar = en
	}
	return LocalizedText{EN: en, AR: ar}
}

// IsEmpty reports whether neither language has text.
func (l LocalizedText) IsEmpty() bool {
	return l.EN == "" && l.AR == ""
}
