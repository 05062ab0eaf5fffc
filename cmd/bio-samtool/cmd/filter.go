package cmd

// Functions for parsing and evaluating the --filter expressions.
// Syntax is very similar to sambamba's:
//  https://github.com/biod/sambamba/wiki/%5Bsambamba-view%5D-Filter-expression-syntax.
import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strconv"

	"github.com/grailbio/base/log"
	"github.com/grailbio/samcore/encoding/sam"
)

const filterHelp = `Filter expression defines a boolean condition on a single record.

EXAMPLES:
   map_quality >= 60 && sequence_length < 150
   (paired && first_of_pair) || unmapped
   re(ref_name, "^name:[0-9]+$")
   has_tag("MD") && !duplicate

SYNTAX:

  Expressions are parsed using the Go parser. The operator precedence rules
  follow Go's.

  expr = intliteral | stringliteral
       re(expr, regexp) |  // Partial regex match.
       has_tag(stringliteral) |
       binary_op | equality_op
       logical_op
       (expr) |
       symbol

  # Args to a binary op can be integers, strings.
  # The two args must be of the same type.
  binary_op = expr > expr | expr >= expr | expr < expr | expr <= expr

  # Args to an equality op can be integers, strings, or bools.
  # The two args must be of the same type.
  equality_op = expr == expr |
        expr != expr

  logical_op = expr && expr |
  expr || expr |
        !expr

  // The following expressions extract a field value from a record.
  symbol = string_field | int_field | boolean_flag

  string_field = ref_name | mate_ref_name | rec_name | cigar

  int_field = ref_id |     // -1 if the read has no reference
       position |          // 0-based
       mate_ref_id |
       mate_position |
       sequence_length |
       mapping_quality |
       template_length |
       flag

  boolean_flag = paired | proper_pair | unmapped | mate_is_unmapped |
       is_reverse_strand | mate_is_reverse_strand |
       first_of_pair | second_of_pair |  // R1 or R2
       secondary_alignment| failed_quality_control| duplicate | supplementary |
       chimeric

  Note: flag 'chimeric' is shorthand for (paired && !unmapped && !mate_is_unmapped && (ref_id != mate_ref_id))

  intliteral is 0, 1, -1, 0x10, etc.
  stringliteral is "foo", "文字", etc. It supports all golang string escape sequences.
`

type valueType int

const (
	valueTypeInt valueType = iota
	valueTypeStr
	valueTypeBool
)

func (t valueType) String() string {
	switch t {
	case valueTypeInt:
		return "int"
	case valueTypeStr:
		return "string"
	}
	return "bool"
}

// Result of evaluating a filterExpr node.
type exprValue struct {
	vtype     valueType
	intValue  int64
	strValue  string
	boolValue bool
}

func boolValue(v bool) exprValue { return exprValue{vtype: valueTypeBool, boolValue: v} }

func intValue(v int64) exprValue { return exprValue{vtype: valueTypeInt, intValue: v} }

func strValue(v string) exprValue { return exprValue{vtype: valueTypeStr, strValue: v} }

// record is the evaluation context of an expression.
type record struct {
	h *sam.Header
	r *sam.Record
}

// field extracts one value from a record.
type field struct {
	vtype valueType
	get   func(rec record) exprValue
}

func flagField(f sam.Flags) field {
	return field{valueTypeBool, func(rec record) exprValue { return boolValue(rec.r.Flags&f != 0) }}
}

func intField(get func(r *sam.Record) int) field {
	return field{valueTypeInt, func(rec record) exprValue { return intValue(int64(get(rec.r))) }}
}

var fields = map[string]field{
	"rec_name":      {valueTypeStr, func(rec record) exprValue { return strValue(rec.r.Name) }},
	"ref_name":      {valueTypeStr, func(rec record) exprValue { return strValue(rec.r.RefName(rec.h)) }},
	"mate_ref_name": {valueTypeStr, func(rec record) exprValue { return strValue(rec.r.MateRefName(rec.h)) }},
	"cigar":         {valueTypeStr, func(rec record) exprValue { return strValue(rec.r.Cigar.String()) }},

	"ref_id":          intField(func(r *sam.Record) int { return r.RefID }),
	"position":        intField(func(r *sam.Record) int { return r.Pos }),
	"mate_ref_id":     intField(func(r *sam.Record) int { return r.MateRefID }),
	"mate_position":   intField(func(r *sam.Record) int { return r.MatePos }),
	"sequence_length": intField(func(r *sam.Record) int { return len(r.Seq) }),
	"mapping_quality": intField(func(r *sam.Record) int { return int(r.MapQ) }),
	"template_length": intField(func(r *sam.Record) int { return r.TempLen }),
	"flag":            intField(func(r *sam.Record) int { return int(r.Flags) }),

	"paired":                 flagField(sam.Paired),
	"proper_pair":            flagField(sam.ProperPair),
	"unmapped":               flagField(sam.Unmapped),
	"mate_is_unmapped":       flagField(sam.MateUnmapped),
	"is_reverse_strand":      flagField(sam.Reverse),
	"mate_is_reverse_strand": flagField(sam.MateReverse),
	"first_of_pair":          flagField(sam.Read1),
	"second_of_pair":         flagField(sam.Read2),
	"secondary_alignment":    flagField(sam.Secondary),
	"failed_quality_control": flagField(sam.QCFail),
	"duplicate":              flagField(sam.Duplicate),
	"supplementary":          flagField(sam.Supplementary),
	"chimeric": {valueTypeBool, func(rec record) exprValue {
		r := rec.r
		return boolValue(r.Flags&(sam.Paired|sam.Unmapped|sam.MateUnmapped) == sam.Paired && r.RefID != r.MateRefID)
	}},
}

// filterExpr is a node of a parsed expression. Exactly one of the
// evaluation fields is set.
type filterExpr struct {
	vtype valueType
	// Constant or field value.
	constant *exprValue
	field    *field
	// Unary or binary operator.
	op   token.Token
	x, y *filterExpr
	// re() and has_tag().
	regexp *regexp.Regexp
	tag    string
}

func (expr *filterExpr) evaluate(rec record) exprValue {
	switch {
	case expr.constant != nil:
		return *expr.constant
	case expr.field != nil:
		return expr.field.get(rec)
	case expr.regexp != nil:
		return boolValue(expr.regexp.MatchString(expr.x.evaluate(rec).strValue))
	case expr.tag != "":
		_, ok := rec.r.Tag(expr.tag)
		return boolValue(ok)
	}
	x := expr.x.evaluate(rec)
	switch expr.op {
	case token.NOT:
		return boolValue(!x.boolValue)
	case token.LAND:
		return boolValue(x.boolValue && expr.y.evaluate(rec).boolValue)
	case token.LOR:
		return boolValue(x.boolValue || expr.y.evaluate(rec).boolValue)
	}
	y := expr.y.evaluate(rec)
	var c int
	switch x.vtype {
	case valueTypeInt:
		c = compareInt(x.intValue, y.intValue)
	case valueTypeStr:
		c = compareString(x.strValue, y.strValue)
	case valueTypeBool:
		if x.boolValue != y.boolValue {
			c = 1
		}
	}
	switch expr.op {
	case token.EQL:
		return boolValue(c == 0)
	case token.NEQ:
		return boolValue(c != 0)
	case token.GEQ:
		return boolValue(c >= 0)
	case token.LEQ:
		return boolValue(c <= 0)
	case token.LSS:
		return boolValue(c < 0)
	case token.GTR:
		return boolValue(c > 0)
	}
	log.Panicf("unknown expr: %+v", expr)
	return exprValue{}
}

func compareInt(x, y int64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func compareString(x, y string) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

type exprParser struct {
	err error
}

func (p *exprParser) setError(err error) {
	if err != nil && p.err == nil {
		p.err = err
	}
}

func (p *exprParser) check(cond bool, message string, node ast.Node) {
	if !cond {
		p.setError(fmt.Errorf("%s: %s", message, astDebugString(node)))
	}
}

// stringConst returns the value of a string literal argument.
func (p *exprParser) stringConst(node ast.Expr) string {
	lit, ok := node.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		p.setError(fmt.Errorf("expect a string literal, got %v", astDebugString(node)))
		return ""
	}
	v, err := strconv.Unquote(lit.Value)
	p.setError(err)
	return v
}

func (p *exprParser) parse(node ast.Expr) *filterExpr {
	if p.err != nil {
		return nil
	}
	switch e := node.(type) {
	case *ast.ParenExpr:
		return p.parse(e.X)
	case *ast.CallExpr:
		fun, ok := e.Fun.(*ast.Ident)
		if !ok || len(e.Args) == 0 {
			break
		}
		switch {
		case fun.Name == "re" && len(e.Args) == 2:
			x := p.parse(e.Args[0])
			pattern := p.stringConst(e.Args[1])
			if p.err != nil {
				return nil
			}
			p.check(x.vtype == valueTypeStr, "operand for re() must be string", node)
			re, err := regexp.Compile(pattern)
			p.setError(err)
			return &filterExpr{vtype: valueTypeBool, x: x, regexp: re}
		case fun.Name == "has_tag" && len(e.Args) == 1:
			tag := p.stringConst(e.Args[0])
			p.check(len(tag) == 2, "has_tag() takes a two-character tag", node)
			return &filterExpr{vtype: valueTypeBool, tag: tag}
		}
		p.setError(fmt.Errorf("unknown function call: %v", astDebugString(node)))
		return nil
	case *ast.UnaryExpr:
		x := p.parse(e.X)
		if p.err != nil {
			return nil
		}
		switch e.Op {
		case token.NOT:
			p.check(x.vtype == valueTypeBool, "operand for ! must be bool", node)
			return &filterExpr{vtype: valueTypeBool, op: token.NOT, x: x}
		case token.SUB:
			// Negative integer literal.
			p.check(x.constant != nil && x.vtype == valueTypeInt, "operand for - must be an integer literal", node)
			if p.err != nil {
				return nil
			}
			c := intValue(-x.constant.intValue)
			return &filterExpr{vtype: valueTypeInt, constant: &c}
		}
	case *ast.BinaryExpr:
		x, y := p.parse(e.X), p.parse(e.Y)
		if p.err != nil {
			return nil
		}
		switch e.Op {
		case token.LAND, token.LOR:
			p.check(x.vtype == valueTypeBool && y.vtype == valueTypeBool, "operands must be boolean", node)
		case token.EQL, token.NEQ:
			p.check(x.vtype == y.vtype, "operands must be of the same type", node)
		case token.GEQ, token.LEQ, token.LSS, token.GTR:
			p.check(x.vtype == y.vtype && x.vtype != valueTypeBool, "wrong operand type", node)
		default:
			p.setError(fmt.Errorf("unknown binary op: %v", astDebugString(node)))
		}
		return &filterExpr{vtype: valueTypeBool, op: e.Op, x: x, y: y}
	case *ast.BasicLit:
		switch e.Kind {
		case token.STRING:
			v, err := strconv.Unquote(e.Value)
			p.setError(err)
			c := strValue(v)
			return &filterExpr{vtype: valueTypeStr, constant: &c}
		case token.INT:
			v, err := strconv.ParseInt(e.Value, 0, 64)
			p.setError(err)
			c := intValue(v)
			return &filterExpr{vtype: valueTypeInt, constant: &c}
		}
	case *ast.Ident:
		if f, ok := fields[e.Name]; ok {
			return &filterExpr{vtype: f.vtype, field: &f}
		}
		p.setError(fmt.Errorf("unknown symbol %q", e.Name))
		return nil
	}
	p.setError(fmt.Errorf("unknown expr type %v", astDebugString(node)))
	return nil
}

// Pretty-print a golang AST object.
func astDebugString(node interface{}) string {
	out := bytes.Buffer{}
	fset := token.NewFileSet()
	if err := ast.Fprint(&out, fset, node, nil); err != nil {
		panic(err)
	}
	return out.String()
}

// Parse a filter expression.
func parseFilterExpr(str string) (*filterExpr, error) {
	expr, err := parser.ParseExpr(str)
	if err != nil {
		return nil, err
	}
	p := exprParser{}
	node := p.parse(expr)
	if p.err != nil {
		return nil, p.err
	}
	if node.vtype != valueTypeBool {
		return nil, fmt.Errorf("not a boolean expression, but %v: %s", node.vtype, str)
	}
	return node, nil
}

// Given a parsed filter expression and a sam record, check if the record
// matches the expression condition.
func evaluateFilterExpr(expr *filterExpr, h *sam.Header, r *sam.Record) bool {
	return expr.evaluate(record{h: h, r: r}).boolValue
}
