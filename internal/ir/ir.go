// Package ir defines the language-independent structural representation the
// taint engine consumes. Parsers for concrete languages (see
// internal/parser/javascript) normalize their syntax trees into these nodes;
// the engine itself never touches a language-specific tree.
package ir

// Position locates a node in an analyzed source file. Lines are 1-indexed.
type Position struct {
	File   string
	Line   int
	Column int
}

// NodeKind discriminates the closed set of structural node shapes the
// engine recognizes. Anything else a parser encounters should be emitted as
// KindBlock so the engine can still recurse into its children.
type NodeKind uint8

const (
	// KindBlock is a neutral container: statement lists, branches of a
	// conditional, loop bodies. The engine recurses into Body without
	// altering taint state.
	KindBlock NodeKind = iota
	// KindIdent is a bare identifier reference; Name holds the symbol.
	KindIdent
	// KindLiteral is a constant with no taint of its own; Text holds the
	// raw literal for reporting.
	KindLiteral
	// KindMember is a property access; Object is the receiver expression
	// and Name the accessed property.
	KindMember
	// KindCall is a call or constructor expression; Callee is the invoked
	// expression (KindIdent or KindMember) and Args the argument list.
	KindCall
	// KindAssign writes Value into Target. Target may be an identifier, a
	// member access, or a destructuring pattern.
	KindAssign
	// KindVarDecl declares Target (identifier or pattern) initialized from
	// Value. A declaration without an initializer has a nil Value.
	KindVarDecl
	// KindTemplate is an interpolated string literal; Args holds the
	// interpolated expressions in order.
	KindTemplate
	// KindBinary combines Left and Right with operator Op ("+" denotes
	// concatenation; comparison operators produce untainted results).
	KindBinary
	// KindLogical is short-circuit combination: "||", "&&", "??".
	KindLogical
	// KindTernary is a conditional expression with Cond, Then, Else.
	KindTernary
	// KindReturn returns Value (possibly nil) from the enclosing function.
	KindReturn
	// KindSpread splices Value into a surrounding collection or call.
	KindSpread
	// KindCollection is an array/list literal or a collection-mutating
	// append; Args holds the inserted elements.
	KindCollection
	// KindPattern is a destructuring pattern; Args holds the bindings, each
	// a KindIdent whose Field names the source field it was bound from
	// (empty when the binding is not nameable), or a nested KindPattern.
	KindPattern
)

var kindNames = [...]string{
	"block", "ident", "literal", "member", "call", "assign", "var_decl",
	"template", "binary", "logical", "ternary", "return", "spread",
	"collection", "pattern",
}

func (k NodeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Node is one structural element of a function body. Only the fields
// relevant to its Kind are populated; the engine treats unexpected shapes
// as opaque and recurses through Children.
type Node struct {
	Kind NodeKind
	Pos  Position

	// Name is the identifier symbol, member property, or pattern binding.
	Name string
	// Field is the source field a pattern binding was bound from.
	Field string
	// Text is the raw source snippet, used for reporting.
	Text string
	// Op is the operator of a binary or logical node.
	Op string
	// Branch marks a KindBlock that is one arm of a conditional (if arm,
	// switch case, catch body). Assignments inside a branch arm merge with
	// the prior binding instead of replacing it, since the arm may not run.
	Branch bool

	Object *Node // KindMember receiver
	Callee *Node // KindCall target
	Target *Node // KindAssign / KindVarDecl left-hand side
	Value  *Node // right-hand side, return value, spread operand
	Left   *Node // KindBinary / KindLogical
	Right  *Node
	Cond   *Node // KindTernary
	Then   *Node
	Else   *Node

	// Args holds call arguments, template parts, collection elements, or
	// pattern bindings depending on Kind.
	Args []*Node
	// Body holds nested statements for KindBlock.
	Body []*Node
}

// Children returns every populated child in a stable order, for generic
// recursion over shapes the caller does not special-case.
func (n *Node) Children() []*Node {
	if n == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.Args)+len(n.Body)+8)
	for _, c := range []*Node{n.Object, n.Callee, n.Target, n.Value, n.Left, n.Right, n.Cond, n.Then, n.Else} {
		if c != nil {
			out = append(out, c)
		}
	}
	out = append(out, n.Args...)
	out = append(out, n.Body...)
	return out
}

// Decorator is an annotation attached to a function parameter.
type Decorator struct {
	Name string
}

// Parameter describes one formal parameter of a function.
type Parameter struct {
	Name       string
	Type       string // declared type annotation, if any
	Decorators []Decorator
}

// Function is the unit of analysis: identity, parameters, and a normalized
// body. A nil Body marks a function the parser could not materialize; the
// engine skips it and counts it rather than failing the run.
type Function struct {
	// ID is globally unique within one run, typically "file:name".
	ID       string
	Name     string
	File     string
	Language string
	Params   []Parameter
	Body     []*Node
	Pos      Position
}
