// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
	"github.com/lamwimham/neuroflow-sub001/pkg/executor"
	"github.com/lamwimham/neuroflow-sub001/pkg/router"
	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

// registerBuiltins installs the local tools every deployment gets.
func registerBuiltins(rt *router.Router, local *executor.LocalExecutor) error {
	calculate, err := tool.NewBuilder("calculate").
		Description("Evaluate an arithmetic expression with + - * / and parentheses").
		StringParam("expression", "expression to evaluate, e.g. (2+3)*4", true).
		Returns("number").
		Category("builtin").
		Build()
	if err != nil {
		return err
	}
	if err := rt.Register(calculate); err != nil {
		return err
	}
	local.Register("calculate", func(_ context.Context, args map[string]any) (any, error) {
		expression, _ := args["expression"].(string)
		return evalExpression(expression)
	})

	echo, err := tool.NewBuilder("echo").
		Description("Return the given message unchanged").
		StringParam("message", "text to echo back", true).
		Returns("string").
		Category("builtin").
		Build()
	if err != nil {
		return err
	}
	if err := rt.Register(echo); err != nil {
		return err
	}
	local.Register("echo", func(_ context.Context, args map[string]any) (any, error) {
		message, _ := args["message"].(string)
		return message, nil
	})

	return nil
}

// evalExpression evaluates + - * / with parentheses by recursive descent.
func evalExpression(expression string) (float64, error) {
	p := &exprParser{input: strings.TrimSpace(expression)}
	if p.input == "" {
		return 0, errors.Newf(errors.CodeInvalidArguments, "empty expression")
	}
	value, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, errors.Newf(errors.CodeInvalidArguments,
			"unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	return value, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) parseSum() (float64, error) {
	value, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		if p.pos >= len(p.input) {
			return value, nil
		}
		op := p.input[p.pos]
		if op != '+' && op != '-' {
			return value, nil
		}
		p.pos++
		right, err := p.parseProduct()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			value += right
		} else {
			value -= right
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	value, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		if p.pos >= len(p.input) {
			return value, nil
		}
		op := p.input[p.pos]
		if op != '*' && op != '/' {
			return value, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			value *= right
		} else {
			if right == 0 {
				return 0, errors.Newf(errors.CodeInvalidArguments, "division by zero")
			}
			value /= right
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	p.skipSpaces()
	if p.pos < len(p.input) && p.input[p.pos] == '-' {
		p.pos++
		value, err := p.parseUnary()
		return -value, err
	}
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (float64, error) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, errors.Newf(errors.CodeInvalidArguments, "unexpected end of expression")
	}
	if p.input[p.pos] == '(' {
		p.pos++
		value, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return 0, errors.Newf(errors.CodeInvalidArguments, "missing closing parenthesis")
		}
		p.pos++
		return value, nil
	}

	start := p.pos
	for p.pos < len(p.input) && (isDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, errors.Newf(errors.CodeInvalidArguments,
			"unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, errors.New(errors.CodeInvalidArguments, "bad number in expression", err)
	}
	return value, nil
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
