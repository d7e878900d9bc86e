package main

import (
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Strategy selects how the connection secret is obtained.
type Strategy int

const (
	StrategyCyberArk Strategy = iota + 1
	StrategyPlainTextFile
	StrategyEncryptedFile
	StrategyEncryptedText
	StrategyPlainText
)

var strategyNames = map[Strategy]string{
	StrategyCyberArk:      "CyberArk",
	StrategyPlainTextFile: "PlainTextFile",
	StrategyEncryptedFile: "EncryptedFile",
	StrategyEncryptedText: "EncryptedText",
	StrategyPlainText:     "PlainText",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "Strategy(" + strconv.Itoa(int(s)) + ")"
}

// ParseStrategy looks a strategy up by name. An empty name selects PlainText.
func ParseStrategy(name string) (Strategy, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return StrategyPlainText, nil
	}
	for s, n := range strategyNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return 0, errors.Errorf("%w: %q", ErrUnsupportedStrategy, name)
}

// ResolveSecret turns the secret material into the connection secret using
// the given strategy. Strategies without an implementation fail with
// ErrUnsupportedStrategy instead of yielding an empty secret.
func ResolveSecret(s Strategy, args ...string) ([]byte, error) {
	switch s {
	case StrategyPlainText:
		return resolvePlainText(args)
	case StrategyCyberArk, StrategyPlainTextFile, StrategyEncryptedFile, StrategyEncryptedText:
		return nil, errors.Errorf("%w: %s is not implemented", ErrUnsupportedStrategy, s)
	default:
		return nil, errors.Errorf("%w: unknown strategy %d", ErrUnsupportedStrategy, int(s))
	}
}

func resolvePlainText(args []string) ([]byte, error) {
	if len(args) != 1 {
		return nil, errors.Errorf("%w: PlainText password handler expects exactly one arg (the password), got %d", ErrInvalidArguments, len(args))
	}
	return []byte(args[0]), nil
}
