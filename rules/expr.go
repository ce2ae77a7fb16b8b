// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package rules

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// ErrExpression indicates an invalid or failing constraint expression.
var ErrExpression = errors.New("invalid constraint expression")

// EvalPredicate compiles and evaluates a constraint expression against the
// given field value. The expression must evaluate to a boolean.
//
// The grammar is deliberately minimal: one bound name "value", numeric/string/
// boolean literals, arithmetic (+ - * / %), comparisons (== != < <= > >=),
// boolean connectives (and/or/not, also && || !), parentheses, and the pure
// functions abs, len, min, max, sum. No other name resolves, so caller-supplied
// expressions cannot reach anything outside their own field value.
func EvalPredicate(expression string, value interface{}) (bool, error) {
	result, err := EvalExpression(expression, value)
	if err != nil {
		return false, err
	}
	boolean, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("%w: expression must evaluate to a boolean, got %T", ErrExpression, result)
	}
	return boolean, nil
}

// EvalExpression compiles and evaluates a constraint expression, returning its raw result.
func EvalExpression(expression string, value interface{}) (interface{}, error) {
	program, err := CompileExpression(expression)
	if err != nil {
		return nil, err
	}
	return program.Eval(value)
}

// Program is a compiled constraint expression.
type Program struct {
	root exprNode
}

// Eval evaluates the program with the given value bound to the name "value".
func (p Program) Eval(value interface{}) (interface{}, error) {
	return p.root(value)
}

// CompileExpression parses a constraint expression into a reusable Program.
func CompileExpression(expression string) (Program, error) {
	tokens, err := tokenize(expression)
	if err != nil {
		return Program{}, err
	}
	parser := &exprParser{tokens: tokens}
	root, err := parser.parseOr()
	if err != nil {
		return Program{}, err
	}
	if parser.peek().kind != tokenEOF {
		return Program{}, fmt.Errorf("%w: unexpected %q", ErrExpression, parser.peek().text)
	}
	return Program{root: root}, nil
}

type exprNode func(value interface{}) (interface{}, error)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenString
	tokenIdent
	tokenOp
)

type token struct {
	kind   tokenKind
	text   string
	number float64
}

func tokenize(expression string) ([]token, error) {
	runes := []rune(expression)
	tokens := make([]token, 0, len(runes)/2)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			number, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q", ErrExpression, text)
			}
			tokens = append(tokens, token{kind: tokenNumber, text: text, number: number})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: string(runes[start:i])})
		case r == '\'' || r == '"':
			quote := r
			i++
			var sb strings.Builder
			for i < len(runes) && runes[i] != quote {
				sb.WriteRune(runes[i])
				i++
			}
			if i >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated string literal", ErrExpression)
			}
			i++
			tokens = append(tokens, token{kind: tokenString, text: sb.String()})
		default:
			two := ""
			if i+1 < len(runes) {
				two = string(runes[i : i+2])
			}
			switch two {
			case "<=", ">=", "==", "!=", "&&", "||":
				tokens = append(tokens, token{kind: tokenOp, text: two})
				i += 2
				continue
			}
			switch r {
			case '+', '-', '*', '/', '%', '<', '>', '(', ')', ',', '!':
				tokens = append(tokens, token{kind: tokenOp, text: string(r)})
				i++
			default:
				return nil, fmt.Errorf("%w: unexpected character %q", ErrExpression, string(r))
			}
		}
	}
	return append(tokens, token{kind: tokenEOF}), nil
}

type exprParser struct {
	tokens []token
	pos    int
}

func (p *exprParser) peek() token {
	return p.tokens[p.pos]
}

func (p *exprParser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) acceptOp(text string) bool {
	if t := p.peek(); t.kind == tokenOp && t.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) acceptIdent(text string) bool {
	if t := p.peek(); t.kind == tokenIdent && t.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) parseOr() (exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("or") || p.acceptOp("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = booleanNode("or", left, right, func(a, b bool) bool { return a || b })
	}
	return left, nil
}

func (p *exprParser) parseAnd() (exprNode, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("and") || p.acceptOp("&&") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = booleanNode("and", left, right, func(a, b bool) bool { return a && b })
	}
	return left, nil
}

func (p *exprParser) parseNot() (exprNode, error) {
	if p.acceptIdent("not") || p.acceptOp("!") {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return func(value interface{}) (interface{}, error) {
			result, err := operand(value)
			if err != nil {
				return nil, err
			}
			boolean, ok := result.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: operand of 'not' must be a boolean", ErrExpression)
			}
			return !boolean, nil
		}, nil
	}
	return p.parseComparison()
}

func (p *exprParser) parseComparison() (exprNode, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokenOp {
		switch t.text {
		case "==", "!=", "<", "<=", ">", ">=":
			op := p.next().text
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return comparisonNode(op, left, right), nil
		}
	}
	return left, nil
}

func (p *exprParser) parseAdditive() (exprNode, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptOp("+"):
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = arithmeticNode("+", left, right, func(a, b float64) (float64, error) { return a + b, nil })
		case p.acceptOp("-"):
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = arithmeticNode("-", left, right, func(a, b float64) (float64, error) { return a - b, nil })
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseMultiplicative() (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptOp("*"):
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = arithmeticNode("*", left, right, func(a, b float64) (float64, error) { return a * b, nil })
		case p.acceptOp("/"):
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = arithmeticNode("/", left, right, func(a, b float64) (float64, error) {
				if b == 0 {
					return 0, fmt.Errorf("%w: division by zero", ErrExpression)
				}
				return a / b, nil
			})
		case p.acceptOp("%"):
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = arithmeticNode("%", left, right, func(a, b float64) (float64, error) {
				if b == 0 {
					return 0, fmt.Errorf("%w: division by zero", ErrExpression)
				}
				return math.Mod(a, b), nil
			})
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseUnary() (exprNode, error) {
	if p.acceptOp("-") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return func(value interface{}) (interface{}, error) {
			result, err := operand(value)
			if err != nil {
				return nil, err
			}
			number, err := toNumber(result)
			if err != nil {
				return nil, err
			}
			return -number, nil
		}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (exprNode, error) {
	t := p.next()
	switch t.kind {
	case tokenNumber:
		number := t.number
		return func(interface{}) (interface{}, error) { return number, nil }, nil
	case tokenString:
		text := t.text
		return func(interface{}) (interface{}, error) { return text, nil }, nil
	case tokenIdent:
		switch t.text {
		case "true":
			return func(interface{}) (interface{}, error) { return true, nil }, nil
		case "false":
			return func(interface{}) (interface{}, error) { return false, nil }, nil
		case "value":
			return func(value interface{}) (interface{}, error) { return value, nil }, nil
		case "abs", "len", "min", "max", "sum":
			return p.parseCall(t.text)
		default:
			return nil, fmt.Errorf("%w: unknown name %q", ErrExpression, t.text)
		}
	case tokenOp:
		if t.text == "(" {
			inner, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if !p.acceptOp(")") {
				return nil, fmt.Errorf("%w: missing closing parenthesis", ErrExpression)
			}
			return inner, nil
		}
	}
	return nil, fmt.Errorf("%w: unexpected %q", ErrExpression, t.text)
}

func (p *exprParser) parseCall(name string) (exprNode, error) {
	if !p.acceptOp("(") {
		return nil, fmt.Errorf("%w: %s must be called with arguments", ErrExpression, name)
	}
	args := make([]exprNode, 0, 2)
	if !p.acceptOp(")") {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.acceptOp(",") {
				continue
			}
			if p.acceptOp(")") {
				break
			}
			return nil, fmt.Errorf("%w: malformed argument list for %s", ErrExpression, name)
		}
	}
	return func(value interface{}) (interface{}, error) {
		evaluated := make([]interface{}, len(args))
		for i, arg := range args {
			result, err := arg(value)
			if err != nil {
				return nil, err
			}
			evaluated[i] = result
		}
		return callFunction(name, evaluated)
	}, nil
}

func booleanNode(name string, left exprNode, right exprNode, combine func(bool, bool) bool) exprNode {
	return func(value interface{}) (interface{}, error) {
		leftResult, err := left(value)
		if err != nil {
			return nil, err
		}
		leftBool, ok := leftResult.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: operand of %q must be a boolean", ErrExpression, name)
		}
		// Short circuit without evaluating the right side.
		if (name == "or" && leftBool) || (name == "and" && !leftBool) {
			return leftBool, nil
		}
		rightResult, err := right(value)
		if err != nil {
			return nil, err
		}
		rightBool, ok := rightResult.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: operand of %q must be a boolean", ErrExpression, name)
		}
		return combine(leftBool, rightBool), nil
	}
}

func arithmeticNode(op string, left exprNode, right exprNode, apply func(float64, float64) (float64, error)) exprNode {
	return func(value interface{}) (interface{}, error) {
		leftResult, err := left(value)
		if err != nil {
			return nil, err
		}
		rightResult, err := right(value)
		if err != nil {
			return nil, err
		}
		leftNumber, err := toNumber(leftResult)
		if err != nil {
			return nil, fmt.Errorf("%w: operand of %q must be a number", ErrExpression, op)
		}
		rightNumber, err := toNumber(rightResult)
		if err != nil {
			return nil, fmt.Errorf("%w: operand of %q must be a number", ErrExpression, op)
		}
		return apply(leftNumber, rightNumber)
	}
}

func comparisonNode(op string, left exprNode, right exprNode) exprNode {
	return func(value interface{}) (interface{}, error) {
		leftResult, err := left(value)
		if err != nil {
			return nil, err
		}
		rightResult, err := right(value)
		if err != nil {
			return nil, err
		}
		return compare(op, leftResult, rightResult)
	}
}

func compare(op string, left interface{}, right interface{}) (interface{}, error) {
	if leftNumber, leftErr := toNumber(left); leftErr == nil {
		if rightNumber, rightErr := toNumber(right); rightErr == nil {
			switch op {
			case "==":
				return leftNumber == rightNumber, nil
			case "!=":
				return leftNumber != rightNumber, nil
			case "<":
				return leftNumber < rightNumber, nil
			case "<=":
				return leftNumber <= rightNumber, nil
			case ">":
				return leftNumber > rightNumber, nil
			case ">=":
				return leftNumber >= rightNumber, nil
			}
		}
	}
	if leftText, ok := left.(string); ok {
		if rightText, ok := right.(string); ok {
			switch op {
			case "==":
				return leftText == rightText, nil
			case "!=":
				return leftText != rightText, nil
			case "<":
				return leftText < rightText, nil
			case "<=":
				return leftText <= rightText, nil
			case ">":
				return leftText > rightText, nil
			case ">=":
				return leftText >= rightText, nil
			}
		}
	}
	switch op {
	case "==":
		return reflect.DeepEqual(left, right), nil
	case "!=":
		return !reflect.DeepEqual(left, right), nil
	}
	return nil, fmt.Errorf("%w: cannot compare %T and %T with %q", ErrExpression, left, right, op)
}

func callFunction(name string, args []interface{}) (interface{}, error) {
	switch name {
	case "abs":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: abs takes exactly one argument", ErrExpression)
		}
		number, err := toNumber(args[0])
		if err != nil {
			return nil, err
		}
		return math.Abs(number), nil
	case "len":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: len takes exactly one argument", ErrExpression)
		}
		switch typed := args[0].(type) {
		case string:
			return float64(len([]rune(typed))), nil
		case []interface{}:
			return float64(len(typed)), nil
		default:
			return nil, fmt.Errorf("%w: len requires a string or array", ErrExpression)
		}
	case "min", "max":
		numbers, err := flattenNumbers(args)
		if err != nil {
			return nil, err
		}
		if len(numbers) == 0 {
			return nil, fmt.Errorf("%w: %s requires at least one number", ErrExpression, name)
		}
		result := numbers[0]
		for _, number := range numbers[1:] {
			if (name == "min" && number < result) || (name == "max" && number > result) {
				result = number
			}
		}
		return result, nil
	case "sum":
		numbers, err := flattenNumbers(args)
		if err != nil {
			return nil, err
		}
		total := 0.0
		for _, number := range numbers {
			total += number
		}
		return total, nil
	}
	return nil, fmt.Errorf("%w: unknown function %q", ErrExpression, name)
}

func flattenNumbers(args []interface{}) ([]float64, error) {
	numbers := make([]float64, 0, len(args))
	for _, arg := range args {
		if list, ok := arg.([]interface{}); ok {
			nested, err := flattenNumbers(list)
			if err != nil {
				return nil, err
			}
			numbers = append(numbers, nested...)
			continue
		}
		number, err := toNumber(arg)
		if err != nil {
			return nil, err
		}
		numbers = append(numbers, number)
	}
	return numbers, nil
}

func toNumber(value interface{}) (float64, error) {
	switch typed := value.(type) {
	case float64:
		return typed, nil
	case int:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	default:
		return 0, fmt.Errorf("%w: %T is not a number", ErrExpression, value)
	}
}
