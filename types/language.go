package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Language is the closed set of programming languages accepted for
// submission. The zero value is not a valid language.
type Language int

// Supported languages.
const (
	LanguageC Language = iota + 1
	LanguageCpp
	LanguageJava
	LanguagePython
)

// ErrUnsupportedLanguage is returned when a language name is not part of
// the supported set.
var ErrUnsupportedLanguage = errors.New("unsupported programming language")

// Languages lists every supported language in a stable order.
var Languages = []Language{LanguageC, LanguageCpp, LanguageJava, LanguagePython}

// ParseLanguage maps a wire name ("c", "cpp", "java", "python") to a Language.
func ParseLanguage(name string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "c":
		return LanguageC, nil
	case "cpp":
		return LanguageCpp, nil
	case "java":
		return LanguageJava, nil
	case "python":
		return LanguagePython, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, name)
	}
}

// String returns the wire name of the language.
func (l Language) String() string {
	switch l {
	case LanguageC:
		return "c"
	case LanguageCpp:
		return "cpp"
	case LanguageJava:
		return "java"
	case LanguagePython:
		return "python"
	default:
		return ""
	}
}

// Extension returns the source file extension understood by the judge.
func (l Language) Extension() string {
	switch l {
	case LanguageC:
		return "c"
	case LanguageCpp:
		return "cpp"
	case LanguageJava:
		return "java"
	case LanguagePython:
		return "py"
	default:
		return ""
	}
}

func (l Language) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Language) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseLanguage(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Value stores the language by its wire name.
func (l Language) Value() (driver.Value, error) {
	if l.String() == "" {
		return nil, ErrUnsupportedLanguage
	}
	return l.String(), nil
}

// Scan reads a language stored by its wire name.
func (l *Language) Scan(src any) error {
	var raw string
	switch typed := src.(type) {
	case string:
		raw = typed
	case []byte:
		raw = string(typed)
	default:
		return fmt.Errorf("cannot scan %T into Language", src)
	}
	parsed, err := ParseLanguage(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
