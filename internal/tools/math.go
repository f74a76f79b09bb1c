package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// arithmeticHandler adapts a binary float operation into a tool
// handler, coercing loosely typed arguments first.
func arithmeticHandler(op func(a, b float64) (float64, error)) func(context.Context, map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		a, err := numberArg(args, "a")
		if err != nil {
			return "", err
		}
		b, err := numberArg(args, "b")
		if err != nil {
			return "", err
		}
		result, err := op(a, b)
		if err != nil {
			return "", err
		}
		return formatNumber(result), nil
	}
}

// numberArg extracts a numeric argument. Models sometimes send numbers
// as strings, so both are accepted.
func numberArg(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number format for %q: %v", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("invalid number format for %q: %T", key, v)
	}
}

// formatNumber renders whole results without a decimal point.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// stringArg extracts a string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return s, nil
}

func handleCountLetters(ctx context.Context, args map[string]any) (string, error) {
	text, err := stringArg(args, "text")
	if err != nil {
		return "", err
	}
	letter, err := stringArg(args, "letter")
	if err != nil {
		return "", err
	}
	if len([]rune(letter)) != 1 {
		return "Error: Please provide exactly one letter to count", nil
	}

	count := strings.Count(strings.ToLower(text), strings.ToLower(letter))
	return fmt.Sprintf("The letter %q appears %d times in %q", letter, count, text), nil
}
