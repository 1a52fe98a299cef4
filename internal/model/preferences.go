package model

// Theme はUIテーマを表す。
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid は定義済みのテーマかどうかを返す。
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Language はUI言語を表す。
type Language string

const (
	LanguagePtBR Language = "pt-BR"
	LanguageEnUS Language = "en-US"
)

// Valid は定義済みの言語かどうかを返す。
func (l Language) Valid() bool {
	return l == LanguagePtBR || l == LanguageEnUS
}

// Preferences はユーザーごとのUI設定を表す。
type Preferences struct {
	Theme    Theme
	Language Language
}

// DefaultPreferences は未保存時に使用する既定のUI設定を返す。
func DefaultPreferences() Preferences {
	return Preferences{Theme: ThemeLight, Language: LanguagePtBR}
}

// Normalize は不正な値を既定値に置き換えた設定を返す。
func (p Preferences) Normalize() Preferences {
	def := DefaultPreferences()
	if !p.Theme.Valid() {
		p.Theme = def.Theme
	}
	if !p.Language.Valid() {
		p.Language = def.Language
	}
	return p
}
