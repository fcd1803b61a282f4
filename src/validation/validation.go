package validation

import (
	"fmt"
	"unicode/utf8"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
)

// Validate seleciona apenas os campos conhecidos de raw, valida cada um e
// devolve o subconjunto seguro. Campos vazios são ignorados, a menos que
// requireAll seja true e o campo seja obrigatório.
func Validate(kind entities.Kind, raw map[string]any, requireAll bool) (map[string]string, error) {
	rules := RulesFor(kind)
	if rules == nil {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidField, kind)
	}

	safeProps := make(map[string]string, len(rules))
	for _, rule := range rules {
		value, present, err := stringValue(rule, raw[rule.Name])
		if err != nil {
			return nil, err
		}

		if !present {
			if rule.Required && requireAll {
				return nil, &domain.ValidationError{Field: rule.Name, Reason: domain.ReasonRequired}
			}
			continue
		}

		if err := Check(rule, value); err != nil {
			return nil, err
		}
		safeProps[rule.Name] = value
	}

	return safeProps, nil
}

// ValidateKey valida apenas o campo chave do tipo.
func ValidateKey(kind entities.Kind, key string) error {
	rule, ok := KeyRule(kind)
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidField, kind)
	}
	if key == "" {
		return &domain.ValidationError{Field: rule.Name, Reason: domain.ReasonRequired}
	}
	return Check(rule, key)
}

// Check aplica minLength, maxLength e pattern, nessa ordem.
func Check(rule Rule, value string) error {
	length := utf8.RuneCountInString(value)

	if rule.MinLength > 0 && length < rule.MinLength {
		return invalid(rule, domain.ReasonTooShort)
	}
	if rule.MaxLength > 0 && length > rule.MaxLength {
		return invalid(rule, domain.ReasonTooLong)
	}
	if rule.Pattern != nil && !rule.Pattern.MatchString(value) {
		return invalid(rule, domain.ReasonFormat)
	}
	return nil
}

func stringValue(rule Rule, v any) (string, bool, error) {
	switch val := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return val, val != "", nil
	default:
		return "", false, invalid(rule, domain.ReasonFormat)
	}
}

func invalid(rule Rule, reason string) error {
	return &domain.ValidationError{Field: rule.Name, Reason: reason, Requirements: rule.Message}
}
