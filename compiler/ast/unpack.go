package ast

import (
	"fmt"

	"github.com/brimdata/flow/pkg/unpack"
)

var unpacker = unpack.New(
	BinOp{},
	Call{},
	Ident{},
	Literal{},
	Statement{},
)

// UnpackJSON decodes the JSON form of a program, a list of statements as
// written by encoding/json.
func UnpackJSON(buf []byte) ([]*Statement, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	v, err := unpacker.Unmarshal(buf)
	if v == nil || err != nil {
		return nil, err
	}
	list, ok := v.([]interface{})
	if !ok {
		list = []interface{}{v}
	}
	stmts := make([]*Statement, 0, len(list))
	for _, o := range list {
		stmt, ok := o.(*Statement)
		if !ok {
			return nil, fmt.Errorf("JSON object is not a statement: %T", o)
		}
		if stmt.Expr == nil {
			return nil, fmt.Errorf("statement %q has no expression", stmt.Target)
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// UnpackJSONAsExpr decodes the JSON form of a single expression.
func UnpackJSONAsExpr(buf []byte) (Expr, error) {
	v, err := unpacker.Unmarshal(buf)
	if v == nil || err != nil {
		return nil, err
	}
	e, ok := v.(Expr)
	if !ok {
		return nil, fmt.Errorf("JSON object is not an expression: %T", v)
	}
	return e, nil
}
