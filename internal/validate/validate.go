// Package validate checks merged records against the character-set and
// range rules of the dictionary.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/hanjadb/hanjadb/internal/dictionary"
)

// Kind identifies which rule a record broke.
type Kind string

const (
	KindTraditional          Kind = "invalid_traditional"
	KindSimplified           Kind = "invalid_simplified"
	KindKoreanPronunciation  Kind = "invalid_korean_pronunciation"
	KindForeignPronunciation Kind = "invalid_foreign_pronunciation"
	KindRadical              Kind = "invalid_radical"
	KindStrokeCount          Kind = "invalid_stroke_count"
	KindOther                Kind = "invalid_field"
)

var kindByField = map[string]Kind{
	"traditional":           KindTraditional,
	"simplified":            KindSimplified,
	"korean_pronunciation":  KindKoreanPronunciation,
	"foreign_pronunciation": KindForeignPronunciation,
	"radical":               KindRadical,
	"stroke_count":          KindStrokeCount,
}

// Violation is one broken rule.
type Violation struct {
	Field   string `json:"field"`
	Kind    Kind   `json:"kind"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Message)
}

type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func New() (*Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, fmt.Errorf("failed to register default translations: %w", err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	customs := []struct {
		tag     string
		fn      func(string) bool
		message string
	}{
		{tag: "ideographs", fn: IsIdeographs, message: "{0} must contain only CJK ideographs"},
		{tag: "hangul", fn: IsHangul, message: "{0} must contain only Hangul syllables and spaces"},
		{tag: "romanized", fn: IsRomanized, message: "{0} must contain only Latin letters and tone marks"},
		{tag: "radical", fn: IsRadical, message: "{0} must be a single radical character"},
	}
	for _, c := range customs {
		check := c.fn
		if err := validate.RegisterValidation(c.tag, func(fl validator.FieldLevel) bool {
			return check(fl.Field().String())
		}); err != nil {
			return nil, fmt.Errorf("failed to register %s validation: %w", c.tag, err)
		}
		tag, message := c.tag, c.message
		if err := validate.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
			return ut.Add(tag, message, true)
		}, func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		}); err != nil {
			return nil, fmt.Errorf("failed to register %s translation: %w", tag, err)
		}
	}

	return &Validator{validate: validate, translator: trans}, nil
}

// Validate returns every rule r breaks; an empty result means r is valid.
func (v *Validator) Validate(r dictionary.Record) []Violation {
	err := v.validate.Struct(r)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []Violation{{Kind: KindOther, Message: err.Error()}}
	}

	violations := make([]Violation, 0, len(validationErrors))
	for _, fe := range validationErrors {
		kind, ok := kindByField[fe.Field()]
		if !ok {
			kind = KindOther
		}
		violations = append(violations, Violation{
			Field:   fe.Field(),
			Kind:    kind,
			Rule:    fe.Tag(),
			Message: fe.Translate(v.translator),
		})
	}
	return violations
}

// IsIdeographs reports whether s is non-empty and made of CJK ideographs
// from the unified, extension A, compatibility and extension B-F blocks.
func IsIdeographs(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isIdeograph(r) {
			return false
		}
	}
	return true
}

func isIdeograph(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF:
	case r >= 0x3400 && r <= 0x4DBF:
	case r >= 0xF900 && r <= 0xFAFF:
	case r >= 0x20000 && r <= 0x2CEAF:
	default:
		return false
	}
	return true
}

// IsHangul reports whether s has at least one Hangul syllable and nothing
// but syllables and spaces.
func IsHangul(s string) bool {
	seen := false
	for _, r := range s {
		switch {
		case r >= 0xAC00 && r <= 0xD7A3:
			seen = true
		case r == ' ':
		default:
			return false
		}
	}
	return seen
}

const toneMarks = "āáǎàēéěèīíǐìōóǒòūúǔùǖǘǚǜü"

// IsRomanized reports whether s is made only of Latin letters and pinyin
// tone marks.
func IsRomanized(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || strings.ContainsRune(toneMarks, r)) {
			return false
		}
	}
	return true
}

// IsRadical reports whether s is exactly one ideograph or Kangxi radical.
func IsRadical(s string) bool {
	if utf8.RuneCountInString(s) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s)
	return isIdeograph(r) || (r >= 0x2F00 && r <= 0x2FDF) || (r >= 0x2E80 && r <= 0x2EFF)
}
