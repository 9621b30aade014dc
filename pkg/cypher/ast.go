package cypher

import "github.com/orneryd/nexus/pkg/value"

// Expr is a node of the expression tree.
type Expr interface {
	exprNode()
}

// Literal is a constant value.
type Literal struct {
	Value value.Value
}

// Parameter is a $name placeholder resolved from the statement parameters.
type Parameter struct {
	Name string
}

// Variable references a bound pattern variable.
type Variable struct {
	Name string
}

// PropertyAccess reads Key from Subject, usually a Variable.
type PropertyAccess struct {
	Subject Expr
	Key     string
}

// BinaryOperator tags a BinaryOp.
type BinaryOperator int

const (
	OpAdd BinaryOperator = iota
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpPower
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpAnd
	OpOr
	OpXor
	OpIn
	OpStartsWith
	OpEndsWith
	OpContains
)

var binaryOpNames = map[BinaryOperator]string{
	OpAdd: "+", OpSubtract: "-", OpMultiply: "*", OpDivide: "/", OpModulo: "%", OpPower: "^",
	OpEqual: "=", OpNotEqual: "<>", OpLess: "<", OpLessEqual: "<=", OpGreater: ">", OpGreaterEqual: ">=",
	OpAnd: "AND", OpOr: "OR", OpXor: "XOR", OpIn: "IN",
	OpStartsWith: "STARTS WITH", OpEndsWith: "ENDS WITH", OpContains: "CONTAINS",
}

func (op BinaryOperator) String() string { return binaryOpNames[op] }

// BinaryOp applies Op to Left and Right.
type BinaryOp struct {
	Op          BinaryOperator
	Left, Right Expr
}

// UnaryOperator tags a UnaryOp.
type UnaryOperator int

const (
	UnaryMinus UnaryOperator = iota
	UnaryPlus
	UnaryNot
)

// UnaryOp applies Op to Operand.
type UnaryOp struct {
	Op      UnaryOperator
	Operand Expr
}

// FunctionCall invokes a built-in scalar or aggregate function. Name is
// lower-cased by the parser.
type FunctionCall struct {
	Name     string
	Args     []Expr
	Distinct bool
	// Star marks count(*).
	Star bool
}

// ListLiteral is [a, b, ...] with at least one non-constant element.
type ListLiteral struct {
	Items []Expr
}

// MapLiteral is {k: v, ...}. Keys keep source order.
type MapLiteral struct {
	Keys   []string
	Values []Expr
}

// IsNull is `x IS NULL` or, when Negated, `x IS NOT NULL`.
type IsNull struct {
	Operand Expr
	Negated bool
}

func (*Literal) exprNode()        {}
func (*Parameter) exprNode()      {}
func (*Variable) exprNode()       {}
func (*PropertyAccess) exprNode() {}
func (*BinaryOp) exprNode()       {}
func (*UnaryOp) exprNode()        {}
func (*FunctionCall) exprNode()   {}
func (*ListLiteral) exprNode()    {}
func (*MapLiteral) exprNode()     {}
func (*IsNull) exprNode()         {}

// Direction of a relationship pattern.
type Direction int

const (
	DirOutgoing Direction = iota // (a)-[]->(b)
	DirIncoming                  // (a)<-[]-(b)
	DirBoth                      // (a)-[]-(b)
)

// NodePattern is (var:Label {props}). Properties is a MapLiteral or a
// Parameter, or nil.
type NodePattern struct {
	Variable   string
	Labels     []string
	Properties Expr
}

// RelPattern is -[var:TYPE|OTHER *min..max {props}]->.
type RelPattern struct {
	Variable   string
	Types      []string
	Direction  Direction
	Properties Expr
	VarLength  bool
	MinHops    int
	MaxHops    int
}

// Pattern is an alternating chain of nodes and relationships;
// len(Rels) == len(Nodes)-1.
type Pattern struct {
	Nodes []*NodePattern
	Rels  []*RelPattern
}

// Clause is one step of a query.
type Clause interface {
	clauseNode()
}

// MatchClause is [OPTIONAL] MATCH patterns [WHERE predicate].
type MatchClause struct {
	Optional bool
	Patterns []*Pattern
	Where    Expr
}

// VectorSearchClause is
// CALL vector.knn(label, property, vector[, k]) YIELD node, score [WHERE ...].
// A nil K uses the executor default.
type VectorSearchClause struct {
	Label    Expr
	Property Expr
	Vector   Expr
	K        Expr
	NodeVar  string
	ScoreVar string
	Where    Expr
}

// CreateClause is CREATE patterns.
type CreateClause struct {
	Patterns []*Pattern
}

// MergeClause is MERGE pattern [ON CREATE SET ...] [ON MATCH SET ...].
type MergeClause struct {
	Pattern  *Pattern
	OnCreate []*SetItem
	OnMatch  []*SetItem
}

// SetKind tags a SetItem.
type SetKind int

const (
	SetProperty SetKind = iota // n.key = expr
	SetMerge                   // n += map
	SetReplace                 // n = map
	SetLabels                  // n:Label
)

// SetItem is one assignment of a SET clause.
type SetItem struct {
	Kind     SetKind
	Variable string
	Key      string
	Value    Expr
	Labels   []string
}

// SetClause is SET item, item, ...
type SetClause struct {
	Items []*SetItem
}

// RemoveItem is n.key or n:Label.
type RemoveItem struct {
	Variable string
	Key      string
	Labels   []string
}

// RemoveClause is REMOVE item, item, ...
type RemoveClause struct {
	Items []*RemoveItem
}

// DeleteClause is [DETACH] DELETE var, var, ...
type DeleteClause struct {
	Detach  bool
	Targets []string
}

// ReturnItem is expr [AS alias].
type ReturnItem struct {
	Expr  Expr
	Alias string
}

// SortItem is expr [ASC|DESC].
type SortItem struct {
	Expr       Expr
	Descending bool
}

// ReturnClause is RETURN [DISTINCT] items [ORDER BY ...] [SKIP n] [LIMIT n].
type ReturnClause struct {
	Distinct bool
	Star     bool
	Items    []*ReturnItem
	OrderBy  []*SortItem
	Skip     Expr
	Limit    Expr
}

func (*MatchClause) clauseNode()        {}
func (*VectorSearchClause) clauseNode() {}
func (*CreateClause) clauseNode()       {}
func (*MergeClause) clauseNode()        {}
func (*SetClause) clauseNode()          {}
func (*RemoveClause) clauseNode()       {}
func (*DeleteClause) clauseNode()       {}
func (*ReturnClause) clauseNode()       {}

// Query is an ordered list of clauses.
type Query struct {
	Clauses []Clause
}

// TxCommand is a transaction control statement.
type TxCommand int

const (
	TxNone TxCommand = iota
	TxBegin
	TxCommit
	TxRollback
)

// Statement is a parsed query or a transaction control command.
type Statement struct {
	Query *Query
	Tx    TxCommand
}
