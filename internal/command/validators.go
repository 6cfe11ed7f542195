// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/staranto/cellcachego/internal/cacheutil"
)

// GlobalFlagsValidator checks flag combinations that a single flag's
// Validator cannot see.
func GlobalFlagsValidator(ctx context.Context, c *cli.Command) error {
	if c.String("query") != "" && c.String("output") == "raw" {
		return errors.New("--query cannot be combined with --output=raw")
	}
	return nil
}

type FlagValidatorType func(any) error

func FlagValidators(value any, validators ...FlagValidatorType) error {
	for _, v := range validators {
		if err := v(value); err != nil {
			return err
		}
	}
	return nil
}

// JammedFlagValidator verifies that the arg following a flag does not begin
// with '--'.  urfave/cli allows this and I don't see how to turn it off.
func JammedFlagValidator(value any) error {
	if strings.HasPrefix(value.(string), "--") {
		return errors.New("must not begin with '--'")
	}
	return nil
}

// BytesValidator accepts anything cacheutil.ParseBytes does.
func BytesValidator(value any) error {
	if _, err := cacheutil.ParseBytes(value.(string)); err != nil {
		return fmt.Errorf("must be a byte size such as 512KiB or unbounded: %w", err)
	}
	return nil
}

// PositiveValidator rejects integers below one.
func PositiveValidator(value any) error {
	if value.(int) < 1 {
		return errors.New("must be at least 1")
	}
	return nil
}

// NonNegativeValidator rejects negative integers.
func NonNegativeValidator(value any) error {
	if value.(int) < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

func OutputValidator(value any) error {
	var validOutputFlagValues = []string{"text", "json", "raw", "yaml"}
	valid := false
	for _, v := range validOutputFlagValues {
		if v == value {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("must be one of %v", validOutputFlagValues)
	}
	return nil
}
