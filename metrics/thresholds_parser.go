package metrics

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/guregu/null.v3"
)

// Aggregation method tokens recognized in a threshold expression's left-hand
// side, e.g. "p(95)" in "p(95)<500".
const (
	tokenCount      = "count"
	tokenRate       = "rate"
	tokenValue      = "value"
	tokenAvg        = "avg"
	tokenMin        = "min"
	tokenMax        = "max"
	tokenMed        = "med"
	tokenPercentile = "p"
)

// thresholdExpression is one parsed "method OP value" clause, e.g. "count>20"
// or "p(95)<500".
type thresholdExpression struct {
	AggregationMethod string
	MethodValue       null.Float // percentile argument, set only for tokenPercentile
	Operator          string
	Value             float64
}

// thresholdOperators lists the recognized comparison operators in search
// order: two- and three-character operators before the single-character
// ones, and "===" before "==", so scanThresholdExpression never matches a
// shorter operator contained in a longer one (e.g. "<" inside "<=").
var thresholdOperators = []string{"<=", ">=", "===", "==", "!=", "<", ">"}

// parseThresholdExpression parses a full clause such as "count>20" into its
// method, operator and numeric value.
func parseThresholdExpression(expr string) (*thresholdExpression, error) {
	methodStr, operator, valueStr, err := scanThresholdExpression(expr)
	if err != nil {
		return nil, err
	}

	method, methodValue, err := parseThresholdAggregationMethod(methodStr)
	if err != nil {
		return nil, err
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return nil, fmt.Errorf("unable to parse threshold value %q as a number: %w", valueStr, err)
	}

	return &thresholdExpression{
		AggregationMethod: method,
		MethodValue:       methodValue,
		Operator:          operator,
		Value:             value,
	}, nil
}

// scanThresholdExpression splits expr on its first recognized comparison
// operator, trimming surrounding whitespace from the method and value.
func scanThresholdExpression(expr string) (method, operator, value string, err error) {
	for _, op := range thresholdOperators {
		if idx := strings.Index(expr, op); idx >= 0 {
			method = strings.TrimSpace(expr[:idx])
			value = strings.TrimSpace(expr[idx+len(op):])
			return method, op, value, nil
		}
	}
	return "", "", "", fmt.Errorf("threshold expression %q does not contain a recognized operator", expr)
}

// parseThresholdAggregationMethod parses the method token, validating the
// percentile form "p(N)" and extracting its numeric argument.
func parseThresholdAggregationMethod(s string) (string, null.Float, error) {
	switch s {
	case tokenCount, tokenRate, tokenValue, tokenAvg, tokenMin, tokenMax, tokenMed:
		return s, null.Float{}, nil
	}

	if strings.HasPrefix(s, tokenPercentile+"(") {
		if !strings.HasSuffix(s, ")") {
			return "", null.Float{}, fmt.Errorf("incomplete percentile expression %q, missing closing parenthesis", s)
		}
		arg := s[len(tokenPercentile)+1 : len(s)-1]
		if arg == "" {
			return "", null.Float{}, fmt.Errorf("percentile expression %q is missing its percentile value", s)
		}
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "", null.Float{}, fmt.Errorf("unable to parse percentile value %q as a number: %w", arg, err)
		}
		if v <= 0 || v > 100 {
			return "", null.Float{}, fmt.Errorf("percentile value %q must be in the range (0, 100]", arg)
		}
		return tokenPercentile, null.FloatFrom(v), nil
	}

	return "", null.Float{}, fmt.Errorf("unknown threshold aggregation method %q", s)
}
