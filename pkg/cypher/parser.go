package cypher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/orneryd/nexus/pkg/value"
)

// DefaultMaxHops bounds variable-length relationships written without an
// upper bound, such as -[*]-> or -[*2..]->.
const DefaultMaxHops = 15

// Parse turns query text into a Statement.
func Parse(src string) (*Statement, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	return p.parseStatement()
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	t := p.peek()
	return fmt.Errorf("%w: %s (near %s at position %d)", ErrSyntax, fmt.Sprintf(format, args...), t, t.pos)
}

func isKeywordToken(t token, kw string) bool {
	return t.kind == tokIdent && !t.quoted && strings.EqualFold(t.text, kw)
}

func (p *parser) isKeyword(kw string) bool { return isKeywordToken(p.peek(), kw) }

// acceptKeywords consumes the whole keyword sequence or nothing.
func (p *parser) acceptKeywords(kws ...string) bool {
	for i, kw := range kws {
		if !isKeywordToken(p.peekAt(i), kw) {
			return false
		}
	}
	p.pos += len(kws)
	return true
}

func (p *parser) expectKeyword(kw string) error {
	if !p.acceptKeywords(kw) {
		return p.errorf("expected %s", kw)
	}
	return nil
}

func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) acceptPunct(s string) bool {
	if p.isPunct(s) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectPunct(s string) error {
	if !p.acceptPunct(s) {
		return p.errorf("expected %q", s)
	}
	return nil
}

func (p *parser) expectIdent(what string) (string, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return "", p.errorf("expected %s", what)
	}
	p.pos++
	return t.text, nil
}

func (p *parser) atEnd() bool {
	p.acceptPunct(";")
	return p.peek().kind == tokEOF
}

func (p *parser) parseStatement() (*Statement, error) {
	for _, tc := range []struct {
		kw  string
		cmd TxCommand
	}{{"BEGIN", TxBegin}, {"COMMIT", TxCommit}, {"ROLLBACK", TxRollback}} {
		if p.acceptKeywords(tc.kw) {
			p.acceptKeywords("TRANSACTION")
			if !p.atEnd() {
				return nil, p.errorf("unexpected input after %s", tc.kw)
			}
			return &Statement{Tx: tc.cmd}, nil
		}
	}

	q := &Query{}
	for !p.atEnd() {
		c, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		q.Clauses = append(q.Clauses, c)
		if _, ok := c.(*ReturnClause); ok && !p.atEnd() {
			return nil, p.errorf("RETURN must be the last clause")
		}
	}
	if len(q.Clauses) == 0 {
		return nil, fmt.Errorf("%w: empty query", ErrSyntax)
	}
	switch q.Clauses[len(q.Clauses)-1].(type) {
	case *MatchClause, *VectorSearchClause:
		return nil, fmt.Errorf("%w: query cannot conclude with a reading clause (must be RETURN or an update clause)", ErrSyntax)
	}
	return &Statement{Query: q}, nil
}

func (p *parser) parseClause() (Clause, error) {
	switch {
	case p.acceptKeywords("OPTIONAL", "MATCH"):
		return p.parseMatch(true)
	case p.acceptKeywords("MATCH"):
		return p.parseMatch(false)
	case p.acceptKeywords("CALL"):
		return p.parseCall()
	case p.acceptKeywords("CREATE"):
		patterns, err := p.parsePatternList()
		if err != nil {
			return nil, err
		}
		return &CreateClause{Patterns: patterns}, nil
	case p.acceptKeywords("MERGE"):
		return p.parseMerge()
	case p.acceptKeywords("SET"):
		items, err := p.parseSetItems()
		if err != nil {
			return nil, err
		}
		return &SetClause{Items: items}, nil
	case p.acceptKeywords("REMOVE"):
		return p.parseRemove()
	case p.acceptKeywords("DETACH", "DELETE"):
		return p.parseDelete(true)
	case p.acceptKeywords("DELETE"):
		return p.parseDelete(false)
	case p.acceptKeywords("RETURN"):
		return p.parseReturn()
	}
	return nil, p.errorf("expected a clause (MATCH, OPTIONAL MATCH, CALL, CREATE, MERGE, SET, REMOVE, DELETE, RETURN)")
}

func (p *parser) parseMatch(optional bool) (Clause, error) {
	patterns, err := p.parsePatternList()
	if err != nil {
		return nil, err
	}
	m := &MatchClause{Optional: optional, Patterns: patterns}
	if p.acceptKeywords("WHERE") {
		if m.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (p *parser) parseCall() (Clause, error) {
	ns, err := p.expectIdent("procedure name")
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("."); err != nil {
		return nil, err
	}
	name, err := p.expectIdent("procedure name")
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(ns, "vector") || !strings.EqualFold(name, "knn") {
		return nil, fmt.Errorf("%w: unknown procedure %s.%s", ErrSyntax, ns, name)
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	args := make([]Expr, 0, 4)
	for len(args) < 4 {
		if len(args) > 0 {
			// k is optional.
			if len(args) == 3 && p.isPunct(")") {
				break
			}
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	c := &VectorSearchClause{Label: args[0], Property: args[1], Vector: args[2]}
	if len(args) == 4 {
		c.K = args[3]
	}
	if err := p.expectKeyword("YIELD"); err != nil {
		return nil, err
	}
	for {
		field, err := p.expectIdent("YIELD field")
		if err != nil {
			return nil, err
		}
		alias := field
		if p.acceptKeywords("AS") {
			if alias, err = p.expectIdent("alias"); err != nil {
				return nil, err
			}
		}
		switch strings.ToLower(field) {
		case "node":
			c.NodeVar = alias
		case "score":
			c.ScoreVar = alias
		default:
			return nil, fmt.Errorf("%w: vector.knn yields node and score, not %s", ErrSyntax, field)
		}
		if !p.acceptPunct(",") {
			break
		}
	}
	if c.NodeVar == "" {
		return nil, fmt.Errorf("%w: vector.knn must yield node", ErrSyntax)
	}
	if p.acceptKeywords("WHERE") {
		if c.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (p *parser) parseMerge() (Clause, error) {
	pattern, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	m := &MergeClause{Pattern: pattern}
	for {
		switch {
		case p.acceptKeywords("ON", "CREATE", "SET"):
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			m.OnCreate = append(m.OnCreate, items...)
		case p.acceptKeywords("ON", "MATCH", "SET"):
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			m.OnMatch = append(m.OnMatch, items...)
		default:
			return m, nil
		}
	}
}

func (p *parser) parseSetItems() ([]*SetItem, error) {
	var items []*SetItem
	for {
		v, err := p.expectIdent("variable")
		if err != nil {
			return nil, err
		}
		item := &SetItem{Variable: v}
		switch {
		case p.isPunct(":"):
			item.Kind = SetLabels
			if item.Labels, err = p.parseLabels(); err != nil {
				return nil, err
			}
		case p.acceptPunct("."):
			item.Kind = SetProperty
			if item.Key, err = p.expectIdent("property key"); err != nil {
				return nil, err
			}
			if err := p.expectPunct("="); err != nil {
				return nil, err
			}
			if item.Value, err = p.parseExpr(); err != nil {
				return nil, err
			}
		case p.acceptPunct("+="):
			item.Kind = SetMerge
			if item.Value, err = p.parseExpr(); err != nil {
				return nil, err
			}
		case p.acceptPunct("="):
			item.Kind = SetReplace
			if item.Value, err = p.parseExpr(); err != nil {
				return nil, err
			}
		default:
			return nil, p.errorf("expected property, label or map assignment")
		}
		items = append(items, item)
		if !p.acceptPunct(",") {
			return items, nil
		}
	}
}

func (p *parser) parseRemove() (Clause, error) {
	r := &RemoveClause{}
	for {
		v, err := p.expectIdent("variable")
		if err != nil {
			return nil, err
		}
		item := &RemoveItem{Variable: v}
		if p.isPunct(":") {
			if item.Labels, err = p.parseLabels(); err != nil {
				return nil, err
			}
		} else {
			if err := p.expectPunct("."); err != nil {
				return nil, err
			}
			if item.Key, err = p.expectIdent("property key"); err != nil {
				return nil, err
			}
		}
		r.Items = append(r.Items, item)
		if !p.acceptPunct(",") {
			return r, nil
		}
	}
}

func (p *parser) parseDelete(detach bool) (Clause, error) {
	d := &DeleteClause{Detach: detach}
	for {
		v, err := p.expectIdent("variable")
		if err != nil {
			return nil, err
		}
		d.Targets = append(d.Targets, v)
		if !p.acceptPunct(",") {
			return d, nil
		}
	}
}

func (p *parser) parseReturn() (Clause, error) {
	r := &ReturnClause{Distinct: p.acceptKeywords("DISTINCT")}
	if p.acceptPunct("*") {
		r.Star = true
	} else {
		for {
			start := p.peek().pos
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item := &ReturnItem{Expr: expr, Alias: strings.TrimSpace(p.src[start:p.peek().pos])}
			if p.acceptKeywords("AS") {
				if item.Alias, err = p.expectIdent("alias"); err != nil {
					return nil, err
				}
			}
			r.Items = append(r.Items, item)
			if !p.acceptPunct(",") {
				break
			}
		}
	}
	var err error
	if p.acceptKeywords("ORDER", "BY") {
		for {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item := &SortItem{Expr: expr}
			switch {
			case p.acceptKeywords("DESC"), p.acceptKeywords("DESCENDING"):
				item.Descending = true
			case p.acceptKeywords("ASC"), p.acceptKeywords("ASCENDING"):
			}
			r.OrderBy = append(r.OrderBy, item)
			if !p.acceptPunct(",") {
				break
			}
		}
	}
	if p.acceptKeywords("SKIP") {
		if r.Skip, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.acceptKeywords("LIMIT") {
		if r.Limit, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Patterns

func (p *parser) parsePatternList() ([]*Pattern, error) {
	var patterns []*Pattern
	for {
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, pat)
		if !p.acceptPunct(",") {
			return patterns, nil
		}
	}
}

func (p *parser) parsePattern() (*Pattern, error) {
	node, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	pat := &Pattern{Nodes: []*NodePattern{node}}
	for p.isPunct("-") || (p.isPunct("<") && p.peekAt(1).text == "-") {
		rel, err := p.parseRelPattern()
		if err != nil {
			return nil, err
		}
		node, err := p.parseNodePattern()
		if err != nil {
			return nil, err
		}
		pat.Rels = append(pat.Rels, rel)
		pat.Nodes = append(pat.Nodes, node)
	}
	return pat, nil
}

func (p *parser) parseNodePattern() (*NodePattern, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	n := &NodePattern{}
	if t := p.peek(); t.kind == tokIdent {
		n.Variable = p.next().text
	}
	var err error
	if p.isPunct(":") {
		if n.Labels, err = p.parseLabels(); err != nil {
			return nil, err
		}
	}
	if n.Properties, err = p.parsePatternProperties(); err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *parser) parseLabels() ([]string, error) {
	var labels []string
	for p.acceptPunct(":") {
		l, err := p.expectIdent("label")
		if err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, nil
}

func (p *parser) parsePatternProperties() (Expr, error) {
	switch {
	case p.isPunct("{"):
		return p.parseMapLiteral()
	case p.peek().kind == tokParam:
		return &Parameter{Name: p.next().text}, nil
	}
	return nil, nil
}

func (p *parser) parseRelPattern() (*RelPattern, error) {
	left := p.acceptPunct("<")
	if err := p.expectPunct("-"); err != nil {
		return nil, err
	}
	r := &RelPattern{MinHops: 1, MaxHops: 1}
	if p.acceptPunct("[") {
		if t := p.peek(); t.kind == tokIdent {
			r.Variable = p.next().text
		}
		if p.acceptPunct(":") {
			for {
				typ, err := p.expectIdent("relationship type")
				if err != nil {
					return nil, err
				}
				r.Types = append(r.Types, typ)
				if !p.acceptPunct("|") {
					break
				}
				p.acceptPunct(":")
			}
		}
		if p.acceptPunct("*") {
			if err := p.parseHops(r); err != nil {
				return nil, err
			}
		}
		var err error
		if r.Properties, err = p.parsePatternProperties(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct("-"); err != nil {
		return nil, err
	}
	right := p.acceptPunct(">")
	switch {
	case left && right:
		return nil, p.errorf("relationship cannot point both ways")
	case left:
		r.Direction = DirIncoming
	case right:
		r.Direction = DirOutgoing
	default:
		r.Direction = DirBoth
	}
	return r, nil
}

func (p *parser) parseHops(r *RelPattern) error {
	r.VarLength = true
	r.MinHops, r.MaxHops = 1, DefaultMaxHops
	readInt := func() (int, bool, error) {
		if p.peek().kind != tokInt {
			return 0, false, nil
		}
		n, err := strconv.Atoi(p.next().text)
		if err != nil || n < 0 {
			return 0, false, p.errorf("invalid hop count")
		}
		return n, true, nil
	}
	lo, hasLo, err := readInt()
	if err != nil {
		return err
	}
	if hasLo {
		r.MinHops = lo
	}
	if p.acceptPunct("..") {
		hi, hasHi, err := readInt()
		if err != nil {
			return err
		}
		if hasHi {
			r.MaxHops = hi
		}
	} else if hasLo {
		r.MaxHops = lo
	}
	if r.MaxHops < r.MinHops {
		return p.errorf("hop range %d..%d is empty", r.MinHops, r.MaxHops)
	}
	return nil
}

// Expressions, lowest precedence first.

func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	for p.acceptKeywords("OR") {
		right, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseXor() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeywords("XOR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: OpXor, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKeywords("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.acceptKeywords("NOT") {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: UnaryNot, Operand: operand}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]BinaryOperator{
	"=": OpEqual, "<>": OpNotEqual, "!=": OpNotEqual,
	"<": OpLess, "<=": OpLessEqual, ">": OpGreater, ">=": OpGreaterEqual,
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		cmpOp, isCmp := comparisonOps[t.text]
		var op BinaryOperator
		switch {
		case t.kind == tokPunct && isCmp:
			op = cmpOp
			p.next()
		case p.acceptKeywords("IN"):
			op = OpIn
		case p.acceptKeywords("STARTS", "WITH"):
			op = OpStartsWith
		case p.acceptKeywords("ENDS", "WITH"):
			op = OpEndsWith
		case p.acceptKeywords("CONTAINS"):
			op = OpContains
		case p.acceptKeywords("IS", "NOT", "NULL"):
			left = &IsNull{Operand: left, Negated: true}
			continue
		case p.acceptKeywords("IS", "NULL"):
			left = &IsNull{Operand: left}
			continue
		default:
			return left, nil
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOperator
		switch {
		case p.isPunct("+"):
			op = OpAdd
		case p.isPunct("-") && !p.startsRelationship():
			op = OpSubtract
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
}

// startsRelationship guards "-" inside pattern property maps, which never
// happens in valid input but keeps error messages sensible.
func (p *parser) startsRelationship() bool {
	next := p.peekAt(1)
	return next.kind == tokPunct && (next.text == "[" || next.text == ">" || next.text == "-")
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOperator
		switch {
		case p.isPunct("*"):
			op = OpMultiply
		case p.isPunct("/"):
			op = OpDivide
		case p.isPunct("%"):
			op = OpModulo
		default:
			return left, nil
		}
		p.next()
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parsePower() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.acceptPunct("^") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: OpPower, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	switch {
	case p.acceptPunct("-"):
		// Fold into the literal so the most negative Int is writable.
		if t := p.peek(); t.kind == tokInt {
			p.next()
			n, err := strconv.ParseInt("-"+t.text, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: integer literal -%s is out of range", ErrInvalidNumber, t.text)
			}
			return &Literal{Value: value.Int(n)}, nil
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: UnaryMinus, Operand: operand}, nil
	case p.acceptPunct("+"):
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: UnaryPlus, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	expr, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.isPunct(".") {
		p.next()
		key, err := p.expectIdent("property key")
		if err != nil {
			return nil, err
		}
		expr = &PropertyAccess{Subject: expr, Key: key}
	}
	return expr, nil
}

func (p *parser) parseAtom() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokInt:
		p.next()
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: integer literal %s is out of range", ErrInvalidNumber, t.text)
		}
		return &Literal{Value: value.Int(n)}, nil
	case tokFloat:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: float literal %s is not finite", ErrInvalidNumber, t.text)
		}
		fv, err := value.NewFloat(f)
		if err != nil {
			return nil, err
		}
		return &Literal{Value: fv}, nil
	case tokString:
		p.next()
		return &Literal{Value: value.String(t.text)}, nil
	case tokParam:
		p.next()
		return &Parameter{Name: t.text}, nil
	case tokPunct:
		switch t.text {
		case "(":
			p.next()
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return expr, nil
		case "[":
			return p.parseListLiteral()
		case "{":
			return p.parseMapLiteral()
		}
	case tokIdent:
		if !t.quoted {
			switch strings.ToLower(t.text) {
			case "true":
				p.next()
				return &Literal{Value: value.Bool(true)}, nil
			case "false":
				p.next()
				return &Literal{Value: value.Bool(false)}, nil
			case "null":
				p.next()
				return &Literal{Value: value.Null{}}, nil
			}
		}
		p.next()
		if p.isPunct("(") && !t.quoted {
			return p.parseFunctionCall(strings.ToLower(t.text))
		}
		return &Variable{Name: t.text}, nil
	}
	return nil, p.errorf("expected an expression")
}

func (p *parser) parseFunctionCall(name string) (Expr, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	fc := &FunctionCall{Name: name}
	if p.acceptPunct("*") {
		if name != "count" {
			return nil, p.errorf("only count accepts *")
		}
		fc.Star = true
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return fc, nil
	}
	fc.Distinct = p.acceptKeywords("DISTINCT")
	if !p.acceptPunct(")") {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			fc.Args = append(fc.Args, arg)
			if !p.acceptPunct(",") {
				break
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
	}
	if name == "point" && len(fc.Args) == 1 {
		if pt, ok := constantPoint(fc.Args[0]); ok {
			return &Literal{Value: pt}, nil
		}
	}
	return fc, nil
}

// constantPoint folds point({x: 1, y: 2}) with literal coordinates into a
// Point literal.
func constantPoint(arg Expr) (value.Point, bool) {
	m, ok := arg.(*MapLiteral)
	if !ok {
		return value.Point{}, false
	}
	vals := make(value.Map, len(m.Keys))
	for i, k := range m.Keys {
		lit, ok := m.Values[i].(*Literal)
		if !ok {
			return value.Point{}, false
		}
		vals[k] = lit.Value
	}
	return value.PointFromMap(vals)
}

func (p *parser) parseListLiteral() (Expr, error) {
	if err := p.expectPunct("["); err != nil {
		return nil, err
	}
	l := &ListLiteral{}
	if p.acceptPunct("]") {
		return l, nil
	}
	for {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		l.Items = append(l.Items, item)
		if !p.acceptPunct(",") {
			break
		}
	}
	if err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return l, nil
}

func (p *parser) parseMapLiteral() (*MapLiteral, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	m := &MapLiteral{}
	if p.acceptPunct("}") {
		return m, nil
	}
	for {
		t := p.next()
		if t.kind != tokIdent && t.kind != tokString {
			return nil, p.errorf("expected map key")
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m.Keys = append(m.Keys, t.text)
		m.Values = append(m.Values, v)
		if !p.acceptPunct(",") {
			break
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return m, nil
}
